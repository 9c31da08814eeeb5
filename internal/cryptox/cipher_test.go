package cryptox

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_IsSHA256OfSecret(t *testing.T) {
	want := sha256.Sum256([]byte("token"))
	got := DeriveKey("token")
	assert.Equal(t, want[:], got)
	assert.Len(t, got, 32)
}

func TestMessageCipher_Disabled_PassesThrough(t *testing.T) {
	for _, secret := range []string{"", "   "} {
		c, err := NewMessageCipher(secret)
		require.NoError(t, err)
		assert.False(t, c.Enabled())

		in := []byte("clear text")
		out, err := c.Encrypt(in)
		require.NoError(t, err)
		assert.Equal(t, in, out)

		back, err := c.Decrypt(out)
		require.NoError(t, err)
		assert.Equal(t, in, back)
	}
}

func TestMessageCipher_RoundTrip(t *testing.T) {
	c, err := NewMessageCipher("shared-secret")
	require.NoError(t, err)
	require.True(t, c.Enabled())

	messages := [][]byte{
		{},
		[]byte("x"),
		bytes.Repeat([]byte{0xAB}, 30000),
	}

	for _, m := range messages {
		sealed, err := c.Encrypt(m)
		require.NoError(t, err)
		assert.Len(t, sealed, NonceSize+len(m)+TagSize)

		plain, err := c.Decrypt(sealed)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(m, plain))
	}
}

func TestMessageCipher_FreshNonceEveryCall(t *testing.T) {
	c, err := NewMessageCipher("k")
	require.NoError(t, err)

	a, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a[:NonceSize], b[:NonceSize])
}

func TestMessageCipher_WrongKeyFails(t *testing.T) {
	c1, err := NewMessageCipher("key-one")
	require.NoError(t, err)
	c2, err := NewMessageCipher("key-two")
	require.NoError(t, err)

	sealed, err := c1.Encrypt([]byte("payload"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = c2.Decrypt(sealed)
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrDecryption))
	}
}

func TestMessageCipher_TamperedAndShortPayloads(t *testing.T) {
	c, err := NewMessageCipher("k")
	require.NoError(t, err)

	sealed, err := c.Encrypt([]byte("payload"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = c.Decrypt(sealed)
	assert.ErrorIs(t, err, common.ErrDecryption)

	_, err = c.Decrypt(make([]byte, NonceSize+TagSize-1))
	assert.ErrorIs(t, err, common.ErrDecryption)
}
