package lockfile

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"
)

// Digest represents a content hash with algorithm.
type Digest struct {
	algorithm string // sha256, sha512
	value     string // hex-encoded hash
}

// NewDigest creates a digest from algorithm and hex value.
func NewDigest(algorithm, hexValue string) (Digest, error) {
	switch algorithm {
	case "sha256", "sha512":
		// Valid
	default:
		return Digest{}, fmt.Errorf("unsupported digest algorithm: %s", algorithm)
	}
	if hexValue == "" {
		return Digest{}, fmt.Errorf("empty %s digest", algorithm)
	}

	return Digest{
		algorithm: algorithm,
		value:     strings.ToLower(hexValue),
	}, nil
}

// ParseDigest parses a digest string (e.g., "sha256:abc123...").
func ParseDigest(s string) (Digest, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return Digest{}, fmt.Errorf("invalid digest format: %s", s)
	}
	return NewDigest(parts[0], parts[1])
}

// SHA256 computes the sha256 digest of data.
func SHA256(data []byte) Digest {
	hash := sha256.Sum256(data)
	return Digest{algorithm: "sha256", value: hex.EncodeToString(hash[:])}
}

// String returns the canonical digest string.
func (d Digest) String() string {
	return fmt.Sprintf("%s:%s", d.algorithm, d.value)
}

// Algorithm returns the hash algorithm.
func (d Digest) Algorithm() string {
	return d.algorithm
}

// Value returns the hex-encoded hash value.
func (d Digest) Value() string {
	return d.value
}

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool {
	return d.algorithm == "" && d.value == ""
}

// Equals checks equality with another digest.
func (d Digest) Equals(other Digest) bool {
	return d.algorithm == other.algorithm && d.value == other.value
}

// Compute hashes data with this digest's algorithm.
func (d Digest) Compute(data []byte) (Digest, error) {
	switch d.algorithm {
	case "sha256":
		return SHA256(data), nil
	case "sha512":
		hash := sha512.Sum512(data)
		return Digest{algorithm: "sha512", value: hex.EncodeToString(hash[:])}, nil
	default:
		return Digest{}, fmt.Errorf("unsupported algorithm: %s", d.algorithm)
	}
}

// Verify hashes data and compares it with d. name labels the returned
// *IntegrityError.
func (d Digest) Verify(name string, data []byte) error {
	actual, err := d.Compute(data)
	if err != nil {
		return err
	}
	if !d.Equals(actual) {
		return &IntegrityError{Name: name, Expected: d, Actual: actual}
	}
	return nil
}
