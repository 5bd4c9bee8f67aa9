package push

import "io"

// Encryptor encrypts payloads before they leave the machine. A nil Encryptor
// on the worker means payloads are uploaded as-is.
type Encryptor interface {
	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error
}
