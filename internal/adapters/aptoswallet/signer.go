package aptoswallet

import (
	"log/slog"
	"strings"

	"github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/crypto"

	"github.com/eleven-am/chainflow/internal/domain"
)

const keyEnvVar = "APTOS_EXECUTION_PRIVATE_KEY"

// Signer is the process-wide signing identity. An ephemeral signer is
// generated at startup when no key is configured and is lost on restart.
type Signer struct {
	Key       *crypto.Ed25519PrivateKey
	Ephemeral bool
}

func NewSignerFromConfig(cfg domain.AptosConfig, logger *slog.Logger) (*Signer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if hex := normalizeKey(cfg.PrivateKey); hex != "" {
		key := &crypto.Ed25519PrivateKey{}
		if err := key.FromHex(hex); err != nil {
			return nil, domain.NewConfigError("aptos.private_key", err)
		}
		return &Signer{Key: key}, nil
	}

	key, err := crypto.GenerateEd25519PrivateKey()
	if err != nil {
		return nil, domain.NewInternalError("failed to generate signing key", err)
	}

	signer := &Signer{Key: key, Ephemeral: true}
	address, err := signer.Address()
	if err != nil {
		return nil, err
	}

	logger.Warn("no execution key configured, generated an ephemeral signing key",
		"component", "aptos-signer",
		"network", cfg.Network,
		"address", address,
		"hint", "set "+keyEnvVar+" (see `chainflow keygen`) to persist the identity across restarts")

	return signer, nil
}

// GenerateKeyHex returns a fresh private key in the hex form accepted by
// NewSignerFromConfig.
func GenerateKeyHex() (string, error) {
	key, err := crypto.GenerateEd25519PrivateKey()
	if err != nil {
		return "", err
	}
	return key.ToHex(), nil
}

func (s *Signer) Address() (string, error) {
	account, err := aptos.NewAccountFromSigner(s.Key)
	if err != nil {
		return "", domain.NewInternalError("failed to derive account from signing key", err)
	}
	return account.Address.String(), nil
}

// normalizeKey accepts bare hex, 0x-prefixed hex and the AIP-80
// "ed25519-priv-0x..." form.
func normalizeKey(raw string) string {
	key := strings.TrimSpace(raw)
	key = strings.TrimPrefix(key, "ed25519-priv-")
	return key
}
