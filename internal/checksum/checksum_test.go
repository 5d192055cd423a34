package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeFile creates a file with the given contents inside a temporary directory.
func writeFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "artifact.pybi")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

// TestNew_Algorithms ensures every advertised algorithm can be constructed under common spellings.
func TestNew_Algorithms(t *testing.T) {
	t.Parallel()

	for _, name := range Supported() {
		h, err := New(name)
		require.NoError(t, err, name)
		require.NotNil(t, h)

		_, err = New(strings.ToUpper(strings.ReplaceAll(name, "_", "-")))
		require.NoError(t, err, name)
	}

	_, err := New("crc32")
	require.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

// TestDigestSizes checks hashlib-compatible digest lengths for the non-stdlib algorithms.
func TestDigestSizes(t *testing.T) {
	t.Parallel()

	sizes := map[string]int{
		"sha3_256": 32,
		"blake2b":  64,
		"blake2s":  32,
		"blake3":   32,
	}

	for name, size := range sizes {
		h, err := New(name)
		require.NoError(t, err)
		require.Equal(t, size, h.Size(), name)
	}
}

// TestVerifyFile accepts matching digests in any case and rejects mismatches.
func TestVerifyFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "interpreter bytes")
	sum := sha256.Sum256([]byte("interpreter bytes"))
	digest := hex.EncodeToString(sum[:])

	got, err := SumFile(path, "sha256")
	require.NoError(t, err)
	require.Equal(t, digest, got)

	require.NoError(t, VerifyFile(path, "sha256", digest))
	require.NoError(t, VerifyFile(path, "SHA256", strings.ToUpper(digest)))

	err = VerifyFile(path, "sha256", "deadbeef")
	require.ErrorIs(t, err, ErrIntegrity)

	err = VerifyFile(path, "whirlpool", digest)
	require.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}
