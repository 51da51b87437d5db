package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyring_RoundTrip(t *testing.T) {
	k := NewKeyring(keyring.NewArrayKeyring(nil))

	_, err := k.Get(SessionTokenKey)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, k.Set(SessionTokenKey, "jwt-abc"))
	got, err := k.Get(SessionTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "jwt-abc", got)

	require.NoError(t, k.Delete(SessionTokenKey))
	require.NoError(t, k.Delete(SessionTokenKey))
	_, err = k.Get(SessionTokenKey)
	require.ErrorIs(t, err, ErrNotFound)
}
