package l402

import (
	"testing"

	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/stretchr/testify/require"
)

// TestVerifyPreimage asserts that only the hex encoding of the exact
// preimage of a payment hash verifies.
func TestVerifyPreimage(t *testing.T) {
	t.Parallel()

	preimage := lntypes.Preimage{1, 2, 3}
	hash := preimage.Hash()

	require.True(t, VerifyPreimage(preimage.String(), hash))

	wrong := lntypes.Preimage{3, 2, 1}
	require.False(t, VerifyPreimage(wrong.String(), hash))

	// Decoding failures must yield false, never panic.
	require.False(t, VerifyPreimage("", hash))
	require.False(t, VerifyPreimage("not-hex", hash))
	require.False(t, VerifyPreimage("abcd", hash))
}
