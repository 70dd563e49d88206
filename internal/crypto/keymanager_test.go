package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	seed := strings.Repeat("ab", 32)

	blob, err := EncryptKey(seed, "hunter2")
	require.NoError(t, err)

	out, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	require.Equal(t, seed, out)
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptKey(strings.Repeat("ab", 32), "correct")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "wrong")
	require.Error(t, err)
}

func TestEncryptRejectsEmptyPassword(t *testing.T) {
	_, err := EncryptKey(strings.Repeat("ab", 32), "")
	require.Error(t, err)
}

func TestEncryptRejectsShortSeed(t *testing.T) {
	_, err := EncryptKey("aabb", "pw")
	require.Error(t, err)
}

func TestEncryptionIsSalted(t *testing.T) {
	seed := strings.Repeat("cd", 32)

	a, err := EncryptKey(seed, "pw")
	require.NoError(t, err)
	b, err := EncryptKey(seed, "pw")
	require.NoError(t, err)
	require.NotEqual(t, a, b, "fresh salt and nonce must make blobs differ")
}

func TestLoadKeyRawTakesPrecedence(t *testing.T) {
	seed := strings.Repeat("ef", 32)

	out, err := LoadKey(KeyConfig{RawSigningKey: seed})
	require.NoError(t, err)
	require.Equal(t, seed, out)
}

func TestLoadKeyFromEncryptedFile(t *testing.T) {
	seed := strings.Repeat("12", 32)
	blob, err := EncryptKey(seed, "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	out, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	require.Equal(t, seed, out)
}

func TestLoadKeyNothingConfigured(t *testing.T) {
	_, err := LoadKey(KeyConfig{})
	require.Error(t, err)
}
