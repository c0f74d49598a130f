package crypto

import (
	"bytes"
	"crypto/sha256"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	sum := sha256.Sum256([]byte("conflict-policy-test"))
	return sum[:]
}

func TestEncryptDecryptReaderRoundTrips(t *testing.T) {
	key := testKey()
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	encReader, err := NewEncryptReader(bytes.NewReader(plaintext), key)
	require.NoError(t, err)
	ciphertext, err := io.ReadAll(encReader)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	decReader, err := NewDecryptReader(bytes.NewReader(ciphertext), key)
	require.NoError(t, err)
	got, err := io.ReadAll(decReader)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestEncryptReaderUsesFreshIVEachCall(t *testing.T) {
	key := testKey()
	plaintext := []byte("same content every time")

	encReader1, err := NewEncryptReader(bytes.NewReader(plaintext), key)
	require.NoError(t, err)
	c1, err := io.ReadAll(encReader1)
	require.NoError(t, err)

	encReader2, err := NewEncryptReader(bytes.NewReader(plaintext), key)
	require.NoError(t, err)
	c2, err := io.ReadAll(encReader2)
	require.NoError(t, err)

	require.NotEqual(t, c1, c2, "reusing a keystream across uploads of the same content would leak it")
}

func TestDecryptReaderRejectsTruncatedStream(t *testing.T) {
	key := testKey()
	_, err := NewDecryptReader(bytes.NewReader([]byte("short")), key)
	require.Error(t, err)
}

func TestEncryptDecryptNameRoundTrips(t *testing.T) {
	key := testKey()
	name := "vacation photos.jpg"

	encrypted, err := EncryptName(name, key)
	require.NoError(t, err)
	require.NotEqual(t, name, encrypted)

	decrypted, err := DecryptName(encrypted, key)
	require.NoError(t, err)
	require.Equal(t, name, decrypted)
}

func TestEncryptNameIsDeterministic(t *testing.T) {
	key := testKey()
	a, err := EncryptName("stable-name", key)
	require.NoError(t, err)
	b, err := EncryptName("stable-name", key)
	require.NoError(t, err)
	require.Equal(t, a, b, "the same name must encrypt to the same value so unchanged files don't churn handles")
}
