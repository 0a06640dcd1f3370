package l402

import (
	"crypto/subtle"

	"github.com/lightningnetwork/lnd/lntypes"
)

// VerifyPreimage reports whether the hex encoded preimage hashes to the given
// payment hash. The comparison runs in constant time and any decoding failure
// yields false, this function never panics on attacker-controlled input.
func VerifyPreimage(preimageHex string, paymentHash lntypes.Hash) bool {
	preimage, err := lntypes.MakePreimageFromStr(preimageHex)
	if err != nil {
		return false
	}

	hash := preimage.Hash()
	return subtle.ConstantTimeCompare(hash[:], paymentHash[:]) == 1
}
