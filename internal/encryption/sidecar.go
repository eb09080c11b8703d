// Package encryption manages database-at-rest encryption: Argon2id
// key derivation, the metadata sidecar, and the export/import flows
// that move the database across the encrypted boundary.
package encryption

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"

	"github.com/treeline-app/treeline/internal/domain"
)

const saltLen = 16

// Params are the Argon2id cost parameters. They are persisted so a
// future version can raise the defaults without orphaning old files.
type Params struct {
	TimeCost    uint32 `json:"time_cost"`
	MemoryCost  uint32 `json:"memory_cost"` // KiB
	Parallelism uint8  `json:"parallelism"`
	HashLen     uint32 `json:"hash_len"`
}

// DefaultParams returns the current cost defaults.
func DefaultParams() Params {
	return Params{TimeCost: 3, MemoryCost: 64 * 1024, Parallelism: 4, HashLen: 32}
}

// Sidecar is the on-disk encryption.json next to the database file.
// Its presence marks the database as encrypted.
type Sidecar struct {
	Encrypted bool   `json:"encrypted"`
	Salt      string `json:"salt"` // base64
	Algorithm string `json:"algorithm"`
	Version   int    `json:"version"`
	Params    Params `json:"argon2_params"`
}

// NewSidecar builds sidecar metadata around a fresh random salt.
func NewSidecar() (*Sidecar, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return &Sidecar{
		Encrypted: true,
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Algorithm: "argon2id",
		Version:   1,
		Params:    DefaultParams(),
	}, nil
}

// LoadSidecar reads the sidecar; a missing file returns nil, nil.
func LoadSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading encryption sidecar: %w", err)
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, domain.Errorf(domain.KindSerialization, "parsing encryption sidecar: %v", err)
	}
	return &sc, nil
}

// Save writes the sidecar file.
func (sc *Sidecar) Save(path string) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding encryption sidecar: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing encryption sidecar: %w", err)
	}
	return nil
}

// HexKey derives the database key from a password and the sidecar's
// salt and parameters, hex encoded for the engine.
func (sc *Sidecar) HexKey(password string) (string, error) {
	salt, err := base64.StdEncoding.DecodeString(sc.Salt)
	if err != nil {
		return "", domain.Errorf(domain.KindEncryption, "sidecar salt is not valid base64: %v", err)
	}
	p := sc.Params
	key := argon2.IDKey([]byte(password), salt, p.TimeCost, p.MemoryCost, p.Parallelism, p.HashLen)
	return hex.EncodeToString(key), nil
}
