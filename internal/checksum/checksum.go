package checksum

import (
	"crypto/md5"  //nolint:gosec // Legacy indexes still publish md5 fragments.
	"crypto/sha1" //nolint:gosec // Legacy indexes still publish sha1 fragments.
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrIntegrity is returned when a file digest differs from the expected one.
	ErrIntegrity = errors.New("integrity check failed")
	// ErrUnsupportedAlgorithm is returned for hash names without an implementation.
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")
)

// constructors maps normalised algorithm names to hash constructors.
//
//nolint:gochecknoglobals // Read-only lookup table.
var constructors = map[string]func() hash.Hash{
	"md5":      md5.New,
	"sha1":     sha1.New,
	"sha224":   sha256.New224,
	"sha256":   sha256.New,
	"sha384":   sha512.New384,
	"sha512":   sha512.New,
	"sha3_224": sha3.New224,
	"sha3_256": sha3.New256,
	"sha3_384": sha3.New384,
	"sha3_512": sha3.New512,
	"blake2b":  newBlake2b,
	"blake2s":  newBlake2s,
	"blake3":   func() hash.Hash { return blake3.New() },
}

// New returns a fresh hash for the named algorithm.
func New(algorithm string) (hash.Hash, error) {
	constructor, ok := constructors[normalize(algorithm)]
	if !ok {
		return nil, fmt.Errorf("%q: %w", algorithm, ErrUnsupportedAlgorithm)
	}

	return constructor(), nil
}

// Supported returns the sorted list of accepted algorithm names.
func Supported() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// SumFile streams the file at path through the named algorithm and returns the hex digest.
func SumFile(path, algorithm string) (string, error) {
	hasher, err := New(algorithm)
	if err != nil {
		return "", err
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("open %s for hashing: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	if _, err = io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// VerifyFile checks that the file at path hashes to expected (hex, any case).
func VerifyFile(path, algorithm, expected string) error {
	actual, err := SumFile(path, algorithm)
	if err != nil {
		return err
	}

	if !strings.EqualFold(actual, strings.TrimSpace(expected)) {
		return fmt.Errorf("%s %s: got %s, want %s: %w", algorithm, filepath.Base(path), actual, expected, ErrIntegrity)
	}

	return nil
}

// normalize lowercases the name and accepts '-' in place of '_'.
func normalize(algorithm string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(algorithm)), "-", "_")
}

// newBlake2b matches hashlib.blake2b defaults: unkeyed, 64-byte digest.
func newBlake2b() hash.Hash {
	hasher, _ := blake2b.New512(nil) //nolint:errcheck // Unkeyed construction cannot fail.
	return hasher
}

// newBlake2s matches hashlib.blake2s defaults: unkeyed, 32-byte digest.
func newBlake2s() hash.Hash {
	hasher, _ := blake2s.New256(nil) //nolint:errcheck // Unkeyed construction cannot fail.
	return hasher
}
