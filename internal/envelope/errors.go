package envelope

import "errors"

var (
	// ErrFormat indicates a missing or short header, a wrong salt length or a
	// ciphertext that is not block aligned.
	ErrFormat = errors.New("malformed key store")

	// ErrCrypto indicates the ciphertext did not decrypt to validly padded
	// UTF-8 text: the wrong secret was used or the file is corrupt.
	ErrCrypto = errors.New("key store decryption failed")
)
