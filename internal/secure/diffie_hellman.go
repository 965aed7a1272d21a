// Package secure negotiates the Photon encrypted channel: a Diffie-Hellman
// exchange over Oakley group 1 whose shared secret, hashed with SHA-256,
// keys AES-256-CBC with a zero IV and PKCS#7 padding.
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
)

var (
	ErrNotInitialized    = errors.New("shared key not established")
	ErrAlreadyKeyed      = errors.New("shared key already established")
	ErrInvalidPublicKey  = errors.New("invalid peer public key")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrInvalidPadding    = errors.New("invalid padding")
	ErrOutOfRange        = errors.New("range outside buffer")
)

// Oakley group 1, the 768-bit MODP prime of RFC 2409.
var prime, _ = new(big.Int).SetString(
	"155251809230070893513091813125848"+
		"175563133404943451431320235119490"+
		"296623994910210725866945387659164"+
		"244291000768028886422915080371891"+
		"804634263272761303128298374438082"+
		"089019628850917069131659317536746"+
		"9551763119843371637221007210577919", 10)

// p-1 has order two, so it and 1 are refused as peer values.
var pMinusOne = new(big.Int).Sub(prime, big.NewInt(1))

var generator = big.NewInt(22)

const secretBits = 160

// DiffieHellman holds one connection's key agreement state. It moves from
// uninitialized to keyed exactly once.
type DiffieHellman struct {
	mu        sync.Mutex
	secret    *big.Int
	publicKey *big.Int
	key       []byte
	block     cipher.Block
}

func NewDiffieHellman() (*DiffieHellman, error) {
	return newDiffieHellman(rand.Reader)
}

// newDiffieHellman draws a secret of exactly secretBits bits: the top bit is
// always set and the rest come from random.
func newDiffieHellman(random io.Reader) (*DiffieHellman, error) {
	top := new(big.Int).Lsh(big.NewInt(1), secretBits-1)
	secret, err := rand.Int(random, top)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	secret.Add(secret, top)

	return &DiffieHellman{
		secret:    secret,
		publicKey: new(big.Int).Exp(generator, secret, prime),
	}, nil
}

// PublicKey is the local public value in its exchanged byte form.
func (dh *DiffieHellman) PublicKey() []byte {
	return exactBytes(dh.publicKey)
}

func (dh *DiffieHellman) Initialized() bool {
	dh.mu.Lock()
	defer dh.mu.Unlock()
	return dh.block != nil
}

// DeriveSharedKey completes the exchange with the peer's big-endian public
// value and prepares the cipher.
func (dh *DiffieHellman) DeriveSharedKey(peerPublicKey []byte) error {
	peer := new(big.Int).SetBytes(peerPublicKey)
	if peer.Cmp(big.NewInt(1)) <= 0 || peer.Cmp(pMinusOne) >= 0 {
		return ErrInvalidPublicKey
	}

	shared := new(big.Int).Exp(peer, dh.secret, prime)
	digest := sha256.Sum256(exactBytes(shared))
	block, err := aes.NewCipher(digest[:])
	if err != nil {
		return err
	}

	dh.mu.Lock()
	defer dh.mu.Unlock()
	if dh.block != nil {
		return ErrAlreadyKeyed
	}
	dh.key = digest[:]
	dh.block = block
	return nil
}

func (dh *DiffieHellman) cipherBlock() (cipher.Block, error) {
	dh.mu.Lock()
	defer dh.mu.Unlock()
	if dh.block == nil {
		return nil, ErrNotInitialized
	}
	return dh.block, nil
}

func (dh *DiffieHellman) Encrypt(data []byte) ([]byte, error) {
	return dh.EncryptRange(data, 0, len(data))
}

// EncryptRange encrypts data[offset:offset+count].
func (dh *DiffieHellman) EncryptRange(data []byte, offset, count int) ([]byte, error) {
	block, err := dh.cipherBlock()
	if err != nil {
		return nil, err
	}
	plain, err := subRange(data, offset, count)
	if err != nil {
		return nil, err
	}

	padded := pad(plain, block.BlockSize())
	cipher.NewCBCEncrypter(block, make([]byte, block.BlockSize())).CryptBlocks(padded, padded)
	return padded, nil
}

func (dh *DiffieHellman) Decrypt(data []byte) ([]byte, error) {
	return dh.DecryptRange(data, 0, len(data))
}

// DecryptRange decrypts data[offset:offset+count].
func (dh *DiffieHellman) DecryptRange(data []byte, offset, count int) ([]byte, error) {
	block, err := dh.cipherBlock()
	if err != nil {
		return nil, err
	}
	enc, err := subRange(data, offset, count)
	if err != nil {
		return nil, err
	}
	if len(enc) == 0 || len(enc)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("%d bytes: %w", len(enc), ErrInvalidCiphertext)
	}

	out := make([]byte, len(enc))
	cipher.NewCBCDecrypter(block, make([]byte, block.BlockSize())).CryptBlocks(out, enc)
	return unpad(out, block.BlockSize())
}

func subRange(data []byte, offset, count int) ([]byte, error) {
	if offset < 0 || count < 0 || offset+count > len(data) {
		return nil, fmt.Errorf("[%d:%d] of %d: %w", offset, offset+count, len(data), ErrOutOfRange)
	}
	return data[offset : offset+count], nil
}

// exactBytes serializes x big-endian in whole 64-bit words, keeping the
// leading zero bytes of the top word.
func exactBytes(x *big.Int) []byte {
	words := (x.BitLen() + 63) / 64
	return x.FillBytes(make([]byte, words*8))
}
