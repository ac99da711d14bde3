package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
)

// LoadKeys loads the signing key from a hex private key or an encrypted keystore file.
// Exactly one source must be set.
func LoadKeys(privateKeyHex, keystorePath, passphrase string) ([]*ecdsa.PrivateKey, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")

	switch {
	case privateKeyHex != "" && keystorePath != "":
		return nil, errors.Join(ErrInvalidConfig, errors.New("both a private key and a keystore are configured"))
	case privateKeyHex != "":
		key, err := crypto.HexToECDSA(privateKeyHex)
		if err != nil {
			return nil, errors.Join(ErrKeyLoad, fmt.Errorf("invalid private key: %w", err))
		}
		return []*ecdsa.PrivateKey{key}, nil
	case keystorePath != "":
		data, err := os.ReadFile(keystorePath)
		if err != nil {
			return nil, errors.Join(ErrKeyLoad, fmt.Errorf("read keystore: %w", err))
		}
		key, err := keystore.DecryptKey(data, passphrase)
		if err != nil {
			return nil, errors.Join(ErrKeyLoad, fmt.Errorf("decrypt keystore: %w", err))
		}
		return []*ecdsa.PrivateKey{key.PrivateKey}, nil
	default:
		return nil, errors.Join(ErrInvalidConfig, errors.New("no signing key configured"))
	}
}
