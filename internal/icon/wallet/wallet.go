// Package wallet loads ICON keystore files and signs transaction hashes.
//
// ICON keystores use the Ethereum V3 keystore layout (scrypt + aes-128-ctr)
// with an hx address; only the address derivation differs.
package wallet

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	clierr "github.com/geometry-infra/preptools/internal/errors"
	"github.com/geometry-infra/preptools/internal/log"
	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/crypto/sha3"
)

// KeyWallet holds an unlocked private key.
type KeyWallet struct {
	privateKey *ecdsa.PrivateKey
	address    string
}

// Load decrypts the keystore at path. Every failure, including a missing
// file, is reported as a keystore error.
func Load(path, password string) (*KeyWallet, error) {
	if strings.TrimSpace(path) == "" {
		return nil, clierr.Keystore("keystore path is required", nil)
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, clierr.Keystore("expand keystore path", err)
	}
	buf, err := os.ReadFile(expanded)
	if err != nil {
		return nil, clierr.Keystore("read keystore file", err)
	}
	key, err := keystore.DecryptKey(buf, password)
	if err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return nil, clierr.Keystore("wrong password", err)
		}
		return nil, clierr.Keystore("decrypt keystore", err)
	}
	w := FromPrivateKey(key.PrivateKey)
	if declared := declaredAddress(buf); declared != "" && declared != w.address {
		return nil, clierr.Keystore(fmt.Sprintf("keystore address %s does not match key address %s", declared, w.address), nil)
	}
	log.Wallet.Debug().Str("address", w.address).Str("path", expanded).Msg("keystore unlocked")
	return w, nil
}

// FromPrivateKey wraps an existing key.
func FromPrivateKey(pk *ecdsa.PrivateKey) *KeyWallet {
	return &KeyWallet{privateKey: pk, address: AddressFromPublicKey(&pk.PublicKey)}
}

// FromHex parses a 32-byte hex private key.
func FromHex(raw string) (*KeyWallet, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, clierr.Keystore("empty private key", nil)
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, clierr.Keystore("parse private key", err)
	}
	return FromPrivateKey(pk), nil
}

// Generate creates a wallet with a fresh random key.
func Generate() (*KeyWallet, error) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return FromPrivateKey(pk), nil
}

// Address returns the hx address of the wallet.
func (w *KeyWallet) Address() string {
	return w.address
}

// Sign returns a 65-byte recoverable signature (r || s || v) over a 32-byte hash.
func (w *KeyWallet) Sign(hash []byte) ([]byte, error) {
	if w == nil || w.privateKey == nil {
		return nil, errors.New("wallet is not initialized")
	}
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	return crypto.Sign(hash, w.privateKey)
}

// PublicKey returns the uncompressed public key as hex.
func (w *KeyWallet) PublicKey() string {
	return "0x" + hex.EncodeToString(crypto.FromECDSAPub(&w.privateKey.PublicKey))
}

// Save writes the wallet to path as an ICON keystore file. Light scrypt
// parameters are meant for tests and throwaway keys.
func (w *KeyWallet) Save(path, password string, light bool) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("expand keystore path: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("keystore file %s already exists", expanded)
	}
	buf, err := w.encrypt(password, light)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o700); err != nil {
		return fmt.Errorf("create keystore directory: %w", err)
	}
	if err := os.WriteFile(expanded, buf, 0o600); err != nil {
		return fmt.Errorf("write keystore file: %w", err)
	}
	return nil
}

type keystoreFile struct {
	Address  string              `json:"address"`
	Crypto   keystore.CryptoJSON `json:"crypto"`
	ID       string              `json:"id"`
	Version  int                 `json:"version"`
	CoinType string              `json:"coinType"`
}

func (w *KeyWallet) encrypt(password string, light bool) ([]byte, error) {
	n, p := keystore.StandardScryptN, keystore.StandardScryptP
	if light {
		n, p = keystore.LightScryptN, keystore.LightScryptP
	}
	cj, err := keystore.EncryptDataV3(crypto.FromECDSA(w.privateKey), []byte(password), n, p)
	if err != nil {
		return nil, fmt.Errorf("encrypt key: %w", err)
	}
	return json.MarshalIndent(keystoreFile{
		Address:  w.address,
		Crypto:   cj,
		ID:       uuid.NewString(),
		Version:  3,
		CoinType: "icx",
	}, "", "  ")
}

// AddressFromPublicKey derives hx + last 20 bytes of SHA3-256 over the
// 64-byte uncompressed public key (without the 0x04 prefix).
func AddressFromPublicKey(pub *ecdsa.PublicKey) string {
	raw := crypto.FromECDSAPub(pub)
	sum := sha3.Sum256(raw[1:])
	return "hx" + hex.EncodeToString(sum[len(sum)-20:])
}

// RecoverAddress returns the hx address that produced sig over hash.
func RecoverAddress(hash, sig []byte) (string, error) {
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}
	return AddressFromPublicKey(pub), nil
}

func declaredAddress(buf []byte) string {
	var probe struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(buf, &probe); err != nil {
		return ""
	}
	addr := strings.ToLower(strings.TrimSpace(probe.Address))
	if !strings.HasPrefix(addr, "hx") {
		// Ethereum keystores carry a bare hex address.
		return ""
	}
	return addr
}
