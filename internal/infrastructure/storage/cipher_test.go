package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *SecretCipher {
	t.Helper()
	encoded, err := GenerateKey()
	require.NoError(t, err)
	key, err := DecodeKey(encoded)
	require.NoError(t, err)
	c, err := NewSecretCipher(key)
	require.NoError(t, err)
	return c
}

func TestSecretCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	box, err := c.Encrypt([]byte("api-key-material"))
	require.NoError(t, err)
	assert.NotContains(t, string(box), "api-key-material")

	plain, err := c.Decrypt(box)
	require.NoError(t, err)
	assert.Equal(t, "api-key-material", string(plain))
}

func TestSecretCipher_FreshNoncePerCall(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSecretCipher_TamperDetected(t *testing.T) {
	c := newTestCipher(t)

	box, err := c.Encrypt([]byte("secret"))
	require.NoError(t, err)
	box[len(box)-1] ^= 0xFF

	_, err = c.Decrypt(box)
	assert.Error(t, err)
}

func TestSecretCipher_RejectsShortCiphertext(t *testing.T) {
	c := newTestCipher(t)
	_, err := c.Decrypt([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestDecodeKey_RejectsBadInput(t *testing.T) {
	_, err := DecodeKey("not base64!!!")
	assert.Error(t, err)

	_, err = DecodeKey("c2hvcnQ=")
	assert.Error(t, err)
}

func TestNewSecretCipher_RejectsWrongKeySize(t *testing.T) {
	_, err := NewSecretCipher(make([]byte, 16))
	assert.Error(t, err)
}
