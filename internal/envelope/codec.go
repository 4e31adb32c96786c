package envelope

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/awnumar/memguard"
)

// Codec converts the ordered key list to and from the on-disk envelope.
// Every implementation must produce and accept byte-identical envelopes.
type Codec interface {
	Encode(ctx context.Context, keys []string) ([]byte, error)
	Decode(ctx context.Context, blob []byte) ([]string, error)
}

// MarshalPlaintext renders keys one per line, each followed by a tab.
// The empty field after the tab is reserved by the format and never read back.
func MarshalPlaintext(keys []string) []byte {
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('\t')
	}
	return []byte(b.String())
}

// UnmarshalPlaintext is the inverse of MarshalPlaintext. Blank lines are
// dropped and only the text before the first tab of a line is kept.
func UnmarshalPlaintext(text []byte) []string {
	keys := []string{}
	for _, line := range strings.Split(string(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		k, _, _ := strings.Cut(line, "\t")
		keys = append(keys, k)
	}
	return keys
}

// headerSize is the magic plus the salt.
const headerSize = 8 + SaltSize

// splitEnvelope validates the header and block alignment of blob and returns
// its salt and ciphertext.
func splitEnvelope(p Params, blob []byte) (salt, ciphertext []byte, err error) {
	if len(blob) <= headerSize {
		return nil, nil, fmt.Errorf("%w: %d bytes is too short", ErrFormat, len(blob))
	}
	if string(blob[:8]) != p.Magic {
		return nil, nil, fmt.Errorf("%w: bad magic %q", ErrFormat, blob[:8])
	}
	ciphertext = blob[headerSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of %d", ErrFormat, len(ciphertext), aes.BlockSize)
	}
	return blob[8:headerSize], ciphertext, nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrCrypto)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrCrypto)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrCrypto)
		}
	}
	return b[:len(b)-n], nil
}

// NativeCodec implements Codec with the Go standard cipher primitives.
type NativeCodec struct {
	params Params
	rand   io.Reader
}

// NewNativeCodec returns a NativeCodec using p.
func NewNativeCodec(p Params) *NativeCodec {
	return &NativeCodec{params: p, rand: rand.Reader}
}

// Encode encrypts keys under a fresh random salt.
func (c *NativeCodec) Encode(_ context.Context, keys []string) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(c.rand, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return c.seal(salt, MarshalPlaintext(keys))
}

func (c *NativeCodec) seal(salt, plaintext []byte) ([]byte, error) {
	key, iv, err := DeriveKeyIV(c.params, salt)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	padded := pad(plaintext)
	out := make([]byte, headerSize+len(padded))
	copy(out, c.params.Magic)
	copy(out[8:], salt)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[headerSize:], padded)
	return out, nil
}

// Decode decrypts blob and returns the keys it holds.
func (c *NativeCodec) Decode(_ context.Context, blob []byte) ([]string, error) {
	salt, ciphertext, err := splitEnvelope(c.params, blob)
	if err != nil {
		return nil, err
	}
	key, iv, err := DeriveKeyIV(c.params, salt)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	defer memguard.WipeBytes(plain)

	text, err := unpad(plain)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(text) {
		return nil, fmt.Errorf("%w: plaintext is not UTF-8", ErrCrypto)
	}
	return UnmarshalPlaintext(text), nil
}
