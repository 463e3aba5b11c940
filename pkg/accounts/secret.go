package accounts

import (
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// MasterSecretEnvVar overrides the OS keychain when set
	MasterSecretEnvVar = "TWIX_MASTER_KEY"

	keyringService = "twix-saver"
	keyringUser    = "master-key"
)

// ResolveMasterSecret returns the process-wide master secret used to derive
// credential encryption keys. The environment variable wins so headless
// deployments work without a keychain; otherwise the OS keychain is consulted.
func ResolveMasterSecret() (string, error) {
	if secret := os.Getenv(MasterSecretEnvVar); secret != "" {
		return secret, nil
	}

	secret, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		return "", fmt.Errorf("master secret not found: set %s or store it in the keychain: %w", MasterSecretEnvVar, err)
	}
	return secret, nil
}

// StoreMasterSecret saves the master secret in the OS keychain
func StoreMasterSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("master secret must not be empty")
	}
	if err := keyring.Set(keyringService, keyringUser, secret); err != nil {
		return fmt.Errorf("failed to store master secret: %w", err)
	}
	return nil
}
