package encryption

import (
	"fmt"

	"multipush/internal/config"
	"multipush/internal/push"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// Type "none" returns nil, which the worker treats as upload-as-is.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (push.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		enc := NewAgeEncryptor(cfg)
		if !enc.IsConfigured() {
			return nil, fmt.Errorf("age encryption enabled but no key at %s; run keygen first", cfg.PublicKeyPath)
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
