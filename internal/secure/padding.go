package secure

import "bytes"

// pad returns a fresh copy of b with PKCS#7 padding appended.
func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	out := make([]byte, len(b), len(b)+n)
	copy(out, b)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrInvalidPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, ErrInvalidPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrInvalidPadding
		}
	}
	return b[:len(b)-n], nil
}
