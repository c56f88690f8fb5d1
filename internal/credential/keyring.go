package credential

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const (
	serviceName = "ambrose"
	secretKey   = "deployment-secret"
)

// Keyring is the subset of keyring.Keyring used to persist the
// deployment secret.
type Keyring interface {
	Get(key string) (keyring.Item, error)
	Set(item keyring.Item) error
}

// OpenKeyring returns the system keyring, falling back to an encrypted
// file under ~/.config/ambrose/credentials.
func OpenKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/ambrose/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("ambrose-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// LoadSecret returns the deployment secret. A configured value wins.
// Otherwise the secret is read from ring, and generated and stored there
// on first use. With neither a configured value nor a ring it fails.
func LoadSecret(configured string, ring Keyring) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if ring == nil {
		return "", errors.New("no secret key configured and keyring disabled")
	}

	item, err := ring.Get(secretKey)
	if err == nil {
		return string(item.Data), nil
	}
	if !errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("getting secret from keyring: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	secret := base64.StdEncoding.EncodeToString(buf)

	if err := ring.Set(keyring.Item{
		Key:         secretKey,
		Data:        []byte(secret),
		Label:       "ambrose deployment secret",
		Description: "encrypts provider access tokens",
	}); err != nil {
		return "", fmt.Errorf("storing secret in keyring: %w", err)
	}
	return secret, nil
}
