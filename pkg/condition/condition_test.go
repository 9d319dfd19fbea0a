package condition_test

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/rwax/swapd/pkg/condition"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	pair, err := condition.Generate()
	require.NoError(t, err)
	require.Len(t, pair.Preimage, condition.PreimageLen)
	require.True(t, condition.Verify(pair.Condition, pair.Preimage))

	other, err := condition.Generate()
	require.NoError(t, err)
	require.NotEqual(t, pair.Preimage, other.Preimage)
	require.NotEqual(t, pair.Condition, other.Condition)
}

func TestConditionEncoding(t *testing.T) {
	preimage := make([]byte, condition.PreimageLen)
	for i := range preimage {
		preimage[i] = byte(i)
	}

	cond, err := condition.FromPreimage(preimage)
	require.NoError(t, err)

	digest := sha256.Sum256(preimage)
	expected := "A0258020" + strings.ToUpper(hex.EncodeToString(digest[:])) + "810120"
	require.Equal(t, expected, cond)

	fulfillment, err := condition.Fulfillment(preimage)
	require.NoError(t, err)
	require.Equal(t, "A0228020"+strings.ToUpper(hex.EncodeToString(preimage)), fulfillment)
	require.True(t, condition.VerifyFulfillment(cond, fulfillment))

	decoded, err := condition.PreimageFromFulfillment(fulfillment)
	require.NoError(t, err)
	require.Equal(t, preimage, decoded)
}

func TestVerifyRejectsTamperedPreimage(t *testing.T) {
	pair, err := condition.Generate()
	require.NoError(t, err)

	// Flipping any single bit must break verification.
	for _, idx := range []int{0, 7, 15, 31} {
		tampered := make([]byte, len(pair.Preimage))
		copy(tampered, pair.Preimage)
		tampered[idx] ^= 0x01
		require.False(t, condition.Verify(pair.Condition, tampered))
	}
}

func TestBadInputs(t *testing.T) {
	_, err := condition.FromPreimage([]byte("short"))
	require.ErrorIs(t, err, condition.ErrBadPreimage)

	_, err = condition.Fulfillment(nil)
	require.ErrorIs(t, err, condition.ErrBadPreimage)

	_, err = condition.PreimageFromFulfillment("not-a-fulfillment")
	require.Error(t, err)

	require.False(t, condition.Verify("A025", nil))
}
