package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"io"

	"github.com/pkg/errors"
)

const ivSize = aes.BlockSize

var (
	errShortCiphertext = errors.New("ciphertext too short")
	errBlockAlignment  = errors.New("ciphertext is not a multiple of the block size")
	errPadding         = errors.New("invalid padding")
)

// cbcSeal encrypts plaintext with AES-256-CBC and PKCS#7 padding. The output
// is IV || ciphertext with a fresh IV read from rnd.
func cbcSeal(plaintext, key []byte, rnd io.Reader) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "new cipher")
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, ivSize+len(padded))
	iv := out[:ivSize]
	if _, err := io.ReadFull(rnd, iv); err != nil {
		return nil, errors.Wrap(err, "read iv")
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[ivSize:], padded)
	wipe(padded)
	return out, nil
}

// cbcOpen reverses cbcSeal.
func cbcOpen(sealed, key []byte) ([]byte, error) {
	if len(sealed) < ivSize+aes.BlockSize {
		return nil, errShortCiphertext
	}
	iv, ct := sealed[:ivSize], sealed[ivSize:]
	if len(ct)%aes.BlockSize != 0 {
		return nil, errBlockAlignment
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "new cipher")
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		wipe(out)
		return nil, err
	}
	return plain, nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, errPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size {
		return nil, errPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errPadding
		}
	}
	return b[:len(b)-n], nil
}
