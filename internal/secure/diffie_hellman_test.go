package secure

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func keyedPair(t *testing.T) (*DiffieHellman, *DiffieHellman) {
	t.Helper()
	client, err := NewDiffieHellman()
	if err != nil {
		t.Fatal(err)
	}
	server, err := NewDiffieHellman()
	if err != nil {
		t.Fatal(err)
	}
	if err := client.DeriveSharedKey(server.PublicKey()); err != nil {
		t.Fatal(err)
	}
	if err := server.DeriveSharedKey(client.PublicKey()); err != nil {
		t.Fatal(err)
	}
	return client, server
}

func TestPrimeIsOakleyGroupOne(t *testing.T) {
	if prime == nil {
		t.Fatal("prime failed to parse")
	}
	if prime.BitLen() != 768 {
		t.Fatalf("prime has %d bits", prime.BitLen())
	}
	if !prime.ProbablyPrime(20) {
		t.Fatal("prime is not prime")
	}
	want, _ := new(big.Int).SetString("FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1"+
		"29024E088A67CC74020BBEA63B139B22514A08798E3404DD"+
		"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245"+
		"E485B576625E7EC6F44C42E9A63A3620FFFFFFFFFFFFFFFF", 16)
	if prime.Cmp(want) != 0 {
		t.Fatal("prime differs from RFC 2409 group 1")
	}
}

func TestSharedKeyAgreement(t *testing.T) {
	client, server := keyedPair(t)

	if !client.Initialized() || !server.Initialized() {
		t.Fatal("expected both sides to be initialized")
	}
	if diff := cmp.Diff(client.key, server.key); diff != "" {
		t.Fatalf("derived keys differ: %s", diff)
	}
	if len(client.key) != 32 {
		t.Fatalf("key is %d bytes", len(client.key))
	}
}

func TestEncryptDecrypt(t *testing.T) {
	client, server := keyedPair(t)

	for _, size := range []int{0, 1, 15, 16, 17, 100} {
		plain := bytes.Repeat([]byte{0xA5}, size)
		enc, err := client.Encrypt(plain)
		if err != nil {
			t.Fatal(err)
		}
		if len(enc)%16 != 0 || len(enc) <= size {
			t.Fatalf("size %d: ciphertext of %d bytes", size, len(enc))
		}
		dec, err := server.Decrypt(enc)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(plain, dec) {
			t.Fatalf("size %d: got %x", size, dec)
		}
	}
}

func TestRanges(t *testing.T) {
	client, server := keyedPair(t)

	data := []byte("headerPAYLOADtrailer")
	enc, err := client.EncryptRange(data, 6, 7)
	if err != nil {
		t.Fatal(err)
	}
	framed := append([]byte("xx"), enc...)
	dec, err := server.DecryptRange(framed, 2, len(enc))
	if err != nil {
		t.Fatal(err)
	}
	if string(dec) != "PAYLOAD" {
		t.Fatalf("got %q", dec)
	}
	if string(data) != "headerPAYLOADtrailer" {
		t.Fatal("input modified")
	}

	if _, err := client.EncryptRange(data, 15, 10); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestUninitialized(t *testing.T) {
	dh, err := NewDiffieHellman()
	if err != nil {
		t.Fatal(err)
	}
	if dh.Initialized() {
		t.Fatal("fresh provider reports initialized")
	}
	if _, err := dh.Encrypt([]byte{1}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := dh.Decrypt(make([]byte, 16)); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestDeriveTwice(t *testing.T) {
	client, server := keyedPair(t)
	if err := client.DeriveSharedKey(server.PublicKey()); !errors.Is(err, ErrAlreadyKeyed) {
		t.Fatalf("expected ErrAlreadyKeyed, got %v", err)
	}
}

func TestInvalidPeerKey(t *testing.T) {
	dh, err := NewDiffieHellman()
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range [][]byte{nil, {1}, pMinusOne.Bytes(), prime.Bytes()} {
		if err := dh.DeriveSharedKey(key); !errors.Is(err, ErrInvalidPublicKey) {
			t.Fatalf("key %x: expected ErrInvalidPublicKey, got %v", key, err)
		}
	}
	if dh.Initialized() {
		t.Fatal("rejected key initialized the provider")
	}
}

func TestDecryptRejectsBadInput(t *testing.T) {
	_, server := keyedPair(t)

	for _, size := range []int{0, 15, 17} {
		if _, err := server.Decrypt(make([]byte, size)); !errors.Is(err, ErrInvalidCiphertext) {
			t.Fatalf("size %d: expected ErrInvalidCiphertext, got %v", size, err)
		}
	}
}

func TestUnpad(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
		err  error
	}{
		{"full block", bytes.Repeat([]byte{16}, 16), []byte{}, nil},
		{"one byte", append([]byte("abcdefghijklmno"), 1), []byte("abcdefghijklmno"), nil},
		{"zero", append(make([]byte, 15), 0), nil, ErrInvalidPadding},
		{"too long", append(make([]byte, 15), 17), nil, ErrInvalidPadding},
		{"inconsistent", append(make([]byte, 14), 1, 2), nil, ErrInvalidPadding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := unpad(tt.in, 16)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			if err == nil && !bytes.Equal(got, tt.want) {
				t.Fatalf("got %x", got)
			}
		})
	}
}

func TestExactBytes(t *testing.T) {
	got := exactBytes(big.NewInt(0x0102))
	if diff := cmp.Diff([]byte{0, 0, 0, 0, 0, 0, 1, 2}, got); diff != "" {
		t.Fatal(diff)
	}
	if len(exactBytes(prime)) != 96 {
		t.Fatalf("prime serialized to %d bytes", len(exactBytes(prime)))
	}
}

func TestSecretHasFullWidth(t *testing.T) {
	for _, fill := range []byte{0x00, 0xFF} {
		dh, err := newDiffieHellman(bytes.NewReader(bytes.Repeat([]byte{fill}, 20)))
		if err != nil {
			t.Fatal(err)
		}
		if dh.secret.BitLen() != secretBits {
			t.Fatalf("fill %#x: secret has %d bits", fill, dh.secret.BitLen())
		}
	}
}
