package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cipher, err := NewCipher("test-master-secret")
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("hunter2")
	require.NoError(t, err)
	assert.NotContains(t, encrypted, "hunter2")

	decrypted, err := cipher.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", decrypted)
}

func TestEncryptProducesDistinctCiphertexts(t *testing.T) {
	cipher, err := NewCipher("test-master-secret")
	require.NoError(t, err)

	first, err := cipher.Encrypt("same password")
	require.NoError(t, err)
	second, err := cipher.Encrypt("same password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "fresh salt per encryption")
}

func TestDecryptWithWrongSecretFails(t *testing.T) {
	cipher, err := NewCipher("right-secret")
	require.NoError(t, err)
	encrypted, err := cipher.Encrypt("hunter2")
	require.NoError(t, err)

	wrong, err := NewCipher("wrong-secret")
	require.NoError(t, err)
	_, err = wrong.Decrypt(encrypted)
	assert.Error(t, err)
}

func TestDecryptMalformedCiphertext(t *testing.T) {
	cipher, err := NewCipher("secret")
	require.NoError(t, err)

	_, err = cipher.Decrypt("@@not-base64@@")
	assert.ErrorIs(t, err, ErrMalformedCiphertext)

	_, err = cipher.Decrypt("c2hvcnQ")
	assert.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestNewCipherRejectsEmptySecret(t *testing.T) {
	_, err := NewCipher("")
	assert.Error(t, err)
}
