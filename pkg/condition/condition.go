// Package condition implements the PREIMAGE-SHA-256 crypto-condition scheme
// used to lock ledger escrows. A condition is the public hash commitment that
// can be attached to an escrow; the fulfillment reveals the 32-byte preimage
// and authorizes release of the held funds.
package condition

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// PreimageLen is the fixed preimage size in bytes.
const PreimageLen = 32

var (
	// ErrGeneration is returned when the secure random source fails. There is
	// no pseudo-random fallback: a predictable preimage breaks the protocol.
	ErrGeneration = errors.New("secure randomness unavailable")

	ErrBadPreimage = errors.New("preimage must be 32 bytes")
)

// DER-TLV framing for a PREIMAGE-SHA-256 condition over a 32-byte preimage:
// type A0 (preimage-sha-256), fingerprint 80 20 <sha256>, cost 81 01 20.
const (
	conditionPrefix   = "A0258020"
	conditionSuffix   = "810120"
	fulfillmentPrefix = "A0228020"
)

// Pair holds a freshly drawn hash-lock: the public condition and the secret
// preimage it commits to.
type Pair struct {
	Condition string
	Preimage  []byte
}

// Generate draws a new 32-byte preimage from crypto/rand and derives its
// public condition.
func Generate() (*Pair, error) {
	preimage := make([]byte, PreimageLen)
	if _, err := rand.Read(preimage); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrGeneration, err)
	}
	cond, err := FromPreimage(preimage)
	if err != nil {
		return nil, err
	}
	return &Pair{Condition: cond, Preimage: preimage}, nil
}

// FromPreimage derives the public condition committing to preimage.
func FromPreimage(preimage []byte) (string, error) {
	if len(preimage) != PreimageLen {
		return "", ErrBadPreimage
	}
	digest := sha256.Sum256(preimage)
	return conditionPrefix + strings.ToUpper(hex.EncodeToString(digest[:])) + conditionSuffix, nil
}

// Fulfillment encodes the preimage in the fulfillment framing expected by the
// ledger when finishing an escrow.
func Fulfillment(preimage []byte) (string, error) {
	if len(preimage) != PreimageLen {
		return "", ErrBadPreimage
	}
	return fulfillmentPrefix + strings.ToUpper(hex.EncodeToString(preimage)), nil
}

// Verify reports whether preimage hashes to the given condition.
func Verify(cond string, preimage []byte) bool {
	derived, err := FromPreimage(preimage)
	if err != nil {
		return false
	}
	return derived == strings.ToUpper(cond)
}

// VerifyFulfillment reports whether an encoded fulfillment satisfies cond.
func VerifyFulfillment(cond, fulfillment string) bool {
	preimage, err := PreimageFromFulfillment(fulfillment)
	if err != nil {
		return false
	}
	return Verify(cond, preimage)
}

// PreimageFromFulfillment decodes the preimage out of an encoded fulfillment.
func PreimageFromFulfillment(fulfillment string) ([]byte, error) {
	f := strings.ToUpper(fulfillment)
	if !strings.HasPrefix(f, fulfillmentPrefix) {
		return nil, fmt.Errorf("malformed fulfillment")
	}
	preimage, err := hex.DecodeString(strings.TrimPrefix(f, fulfillmentPrefix))
	if err != nil {
		return nil, fmt.Errorf("malformed fulfillment: %s", err)
	}
	if len(preimage) != PreimageLen {
		return nil, ErrBadPreimage
	}
	return preimage, nil
}

// Equal compares two preimages in constant length-checked form.
func Equal(a, b []byte) bool {
	return len(a) == PreimageLen && bytes.Equal(a, b)
}
