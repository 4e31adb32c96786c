// Package envelope implements the encrypted key-store envelope: an OpenSSL
// compatible "Salted__" header, an 8 byte salt and an AES-256-CBC ciphertext
// whose key and IV are derived with PBKDF2-HMAC-SHA256.
package envelope

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the length of the per-file random salt.
	SaltSize = 8
	// KeySize is the AES-256 key length.
	KeySize = 32
	// IVSize is the CBC initialization vector length.
	IVSize = 16
)

// Params holds the process-wide envelope constants.
type Params struct {
	// Passphrase is the application-wide secret fed into PBKDF2.
	Passphrase string
	// Iterations is the PBKDF2 iteration count.
	Iterations int
	// Magic is the 8 byte header preceding the salt.
	Magic string
}

// DefaultParams returns the parameters every store on disk is written with.
// Changing any of them makes existing stores unreadable.
func DefaultParams() Params {
	return Params{
		Passphrase: "oroio",
		Iterations: 10000,
		Magic:      "Salted__",
	}
}

// DeriveKeyIV derives the cipher key and IV for salt.
// The first 32 bytes of the 48 byte PBKDF2 output are the key, the next 16 the IV.
func DeriveKeyIV(p Params, salt []byte) (key, iv []byte, err error) {
	if len(salt) != SaltSize {
		return nil, nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrFormat, SaltSize, len(salt))
	}
	derived := pbkdf2.Key([]byte(p.Passphrase), salt, p.Iterations, KeySize+IVSize, sha256.New)
	return derived[:KeySize], derived[KeySize:], nil
}
