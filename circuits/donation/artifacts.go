package donation

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
)

// Artifact file names within an artifact directory.
const (
	CircuitFile      = "donation.ccs"
	ProvingKeyFile   = "donation.pk"
	VerifyingKeyFile = "donation.vk"
)

// WriteArtifacts serializes the circuit description and Groth16 key pair
// into dir, creating it if needed. These are the fixed artifacts the local
// proof backend loads at startup.
func WriteArtifacts(dir string, keys *ProvingKeys) error {
	if keys == nil {
		return fmt.Errorf("nil proving keys")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}
	if err := writeArtifact(filepath.Join(dir, CircuitFile), keys.CCS); err != nil {
		return err
	}
	if err := writeArtifact(filepath.Join(dir, ProvingKeyFile), keys.PK); err != nil {
		return err
	}
	return writeArtifact(filepath.Join(dir, VerifyingKeyFile), keys.VK)
}

// LoadArtifacts deserializes a full artifact set from dir. Any missing or
// malformed artifact is an error; the local backend treats that as a fatal
// startup condition.
func LoadArtifacts(dir string) (*ProvingKeys, error) {
	keys := &ProvingKeys{
		PK:  groth16.NewProvingKey(ecc.BN254),
		VK:  groth16.NewVerifyingKey(ecc.BN254),
		CCS: groth16.NewCS(ecc.BN254),
	}
	if err := readArtifact(filepath.Join(dir, CircuitFile), keys.CCS); err != nil {
		return nil, err
	}
	if err := readArtifact(filepath.Join(dir, ProvingKeyFile), keys.PK); err != nil {
		return nil, err
	}
	if err := readArtifact(filepath.Join(dir, VerifyingKeyFile), keys.VK); err != nil {
		return nil, err
	}
	return keys, nil
}

func writeArtifact(path string, src io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := src.WriteTo(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readArtifact(path string, dst io.ReaderFrom) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open artifact %s: %w", path, err)
	}
	defer f.Close()
	if _, err := dst.ReadFrom(f); err != nil {
		return fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	return nil
}
