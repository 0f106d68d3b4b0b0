package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateMasterKey(t *testing.T) {
	t.Run("Generate master key successfully", func(t *testing.T) {
		key, err := GenerateMasterKey()
		require.NoError(t, err)
		assert.Len(t, key, MasterKeySize)
	})

	t.Run("Generate unique keys", func(t *testing.T) {
		key1, err := GenerateMasterKey()
		require.NoError(t, err)
		key2, err := GenerateMasterKey()
		require.NoError(t, err)
		assert.NotEqual(t, key1, key2)
	})
}

func TestSealOpenPrivateKey(t *testing.T) {
	masterKey, err := GenerateMasterKey()
	require.NoError(t, err)

	pair, err := GenerateKeyPair(AlgorithmEd25519)
	require.NoError(t, err)

	t.Run("Seal and open a signing key", func(t *testing.T) {
		sealed, err := SealPrivateKey(pair.PrivateKeyDER, masterKey, "key-1")
		require.NoError(t, err)
		assert.NotContains(t, string(sealed), string(pair.PrivateKeyDER))

		opened, err := OpenPrivateKey(sealed, masterKey, "key-1")
		require.NoError(t, err)
		assert.Equal(t, pair.PrivateKeyDER, opened)

		signer, err := ParsePrivateKey(opened, AlgorithmEd25519)
		require.NoError(t, err)
		assert.Equal(t, pair.Signer.Public(), signer.Public())
	})

	t.Run("Sealing twice yields different ciphertext", func(t *testing.T) {
		a, err := SealPrivateKey(pair.PrivateKeyDER, masterKey, "key-1")
		require.NoError(t, err)
		b, err := SealPrivateKey(pair.PrivateKeyDER, masterKey, "key-1")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("Opening under another key id fails", func(t *testing.T) {
		sealed, err := SealPrivateKey(pair.PrivateKeyDER, masterKey, "key-1")
		require.NoError(t, err)

		_, err = OpenPrivateKey(sealed, masterKey, "key-2")
		assert.Error(t, err)
	})

	t.Run("Opening with the wrong master key fails", func(t *testing.T) {
		sealed, err := SealPrivateKey(pair.PrivateKeyDER, masterKey, "key-1")
		require.NoError(t, err)

		other, err := GenerateMasterKey()
		require.NoError(t, err)
		_, err = OpenPrivateKey(sealed, other, "key-1")
		assert.Error(t, err)
	})

	t.Run("Tampered ciphertext fails", func(t *testing.T) {
		sealed, err := SealPrivateKey(pair.PrivateKeyDER, masterKey, "key-1")
		require.NoError(t, err)
		sealed[len(sealed)-1] ^= 0xFF

		_, err = OpenPrivateKey(sealed, masterKey, "key-1")
		assert.Error(t, err)
	})

	t.Run("Short ciphertext fails", func(t *testing.T) {
		_, err := OpenPrivateKey([]byte{1, 2, 3}, masterKey, "key-1")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "ciphertext too short")
	})

	t.Run("Invalid master key length fails", func(t *testing.T) {
		_, err := SealPrivateKey(pair.PrivateKeyDER, []byte("too-short"), "key-1")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "master key must be")
	})
}
