package ledger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyFromPrivate_RoundTrip(t *testing.T) {
	key := mustGenerateKey(t)

	loaded, err := KeyFromPrivate(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, key.Address(), loaded.Address())
	require.Len(t, key.Address(), 66)

	pub, err := KeyFromPublic(key.Address())
	require.NoError(t, err)
	require.True(t, pub.Equal(key.Public()))
}

func TestKeyFromPrivate_RejectsBadScalars(t *testing.T) {
	_, err := KeyFromPrivate(make([]byte, 31))
	require.Error(t, err)

	_, err = KeyFromPrivate(make([]byte, PrivateKeySize))
	require.Error(t, err, "zero scalar")

	_, err = KeyFromPrivateHex(strings.Repeat("ff", PrivateKeySize))
	require.Error(t, err, "scalar above curve order")

	_, err = KeyFromPrivateHex("zz")
	require.Error(t, err)
}

func TestKeyFromPublic_RejectsGarbage(t *testing.T) {
	_, err := KeyFromPublic("")
	require.Error(t, err)

	_, err = KeyFromPublic("05" + strings.Repeat("11", 32))
	require.Error(t, err)
}

func TestSign_IsDeterministicAndVerifies(t *testing.T) {
	key := mustGenerateKey(t)
	digest := Digest("message")

	sig1, err := key.Sign(digest)
	require.NoError(t, err)
	sig2, err := key.Sign(digest)
	require.NoError(t, err)
	require.Equal(t, sig1, sig2)

	require.True(t, key.Public().Verify(digest, sig1))
	require.False(t, key.Public().Verify(Digest("other"), sig1))
	require.False(t, VerifySignature("nothex", digest, sig1))
	require.False(t, VerifySignature(key.Address(), digest, "30"))

	// Same bytes, different text: only the lowercase encoding verifies.
	require.False(t, key.Public().Verify(digest, strings.ToUpper(sig1)))

	_, err = key.Sign("not a digest")
	require.Error(t, err)
}
