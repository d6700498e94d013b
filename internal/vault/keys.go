package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"

	"github.com/bamsammich/ferry/internal/errdefs"
)

// ConfigName is the metadata file at a vault root. Listings hide it.
const ConfigName = "vault.json"

const (
	configVersion = 1
	// DefaultScryptN is the scrypt cost used when none is configured.
	DefaultScryptN = 1 << 15
	scryptR        = 8
	scryptP        = 1
	keySize        = chacha20poly1305.KeySize
	saltSize       = 32
)

var masterKeyAD = []byte("ferry-vault-v1")

type scryptParams struct {
	N int `json:"n"`
	R int `json:"r"`
	P int `json:"p"`
}

// vaultConfig is the JSON document stored at ConfigName. Byte slices are
// base64 encoded by encoding/json.
type vaultConfig struct {
	Version int          `json:"version"`
	Scrypt  scryptParams `json:"scrypt"`
	Salt    []byte       `json:"salt"`
	Nonce   []byte       `json:"nonce"`
	Key     []byte       `json:"key"`
}

// keys are the working secrets of an unlocked vault.
type keys struct {
	content cipher.AEAD
	names   cipher.AEAD
	nameIV  []byte
}

func validScryptN(n int) bool {
	return n > 1 && n&(n-1) == 0
}

// newConfig generates a master key and seals it under passphrase.
func newConfig(passphrase string, n int) (*vaultConfig, []byte, error) {
	if !validScryptN(n) {
		return nil, nil, fmt.Errorf("scrypt cost %d is not a power of two", n)
	}
	master := make([]byte, keySize)
	salt := make([]byte, saltSize)
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	for _, b := range [][]byte{master, salt, nonce} {
		if _, err := rand.Read(b); err != nil {
			return nil, nil, err
		}
	}
	cfg := &vaultConfig{
		Version: configVersion,
		Scrypt:  scryptParams{N: n, R: scryptR, P: scryptP},
		Salt:    salt,
		Nonce:   nonce,
	}
	kek, err := cfg.kek(passphrase)
	if err != nil {
		return nil, nil, err
	}
	cfg.Key = kek.Seal(nil, nonce, master, masterKeyAD)
	return cfg, master, nil
}

func parseConfig(data []byte) (*vaultConfig, error) {
	var cfg vaultConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigName, err)
	}
	if cfg.Version != configVersion {
		return nil, fmt.Errorf("%w: vault version %d", errdefs.ErrUnsupported, cfg.Version)
	}
	if !validScryptN(cfg.Scrypt.N) || len(cfg.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("parse %s: invalid parameters", ConfigName)
	}
	return &cfg, nil
}

func (c *vaultConfig) kek(passphrase string) (cipher.AEAD, error) {
	k, err := scrypt.Key([]byte(passphrase), c.Salt, c.Scrypt.N, c.Scrypt.R, c.Scrypt.P, keySize)
	if err != nil {
		return nil, err
	}
	return chacha20poly1305.NewX(k)
}

// open recovers the master key. A wrong passphrase fails with
// errdefs.ErrAccessDenied.
func (c *vaultConfig) open(passphrase string) ([]byte, error) {
	kek, err := c.kek(passphrase)
	if err != nil {
		return nil, err
	}
	master, err := kek.Open(nil, c.Nonce, c.Key, masterKeyAD)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong vault passphrase", errdefs.ErrAccessDenied)
	}
	return master, nil
}

// deriveKeys expands the master key into per-purpose subkeys.
func deriveKeys(master []byte) (*keys, error) {
	sub := func(info string) ([]byte, error) {
		out := make([]byte, keySize)
		if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), out); err != nil {
			return nil, err
		}
		return out, nil
	}
	contentKey, err := sub("content")
	if err != nil {
		return nil, err
	}
	namesKey, err := sub("names")
	if err != nil {
		return nil, err
	}
	nameIV, err := sub("name-iv")
	if err != nil {
		return nil, err
	}
	content, err := chacha20poly1305.NewX(contentKey)
	if err != nil {
		return nil, err
	}
	names, err := chacha20poly1305.NewX(namesKey)
	if err != nil {
		return nil, err
	}
	clear(contentKey)
	clear(namesKey)
	return &keys{content: content, names: names, nameIV: nameIV}, nil
}

func (k *keys) wipe() {
	clear(k.nameIV)
	k.content, k.names, k.nameIV = nil, nil, nil
}

var errNameFormat = errors.New("vault: not an encrypted name")
