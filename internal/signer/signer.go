// Package signer computes and checks the keyed MACs embedded in batch and
// unit QR payloads.
//
// Signatures are HMAC-SHA256 over a canonical pipe-delimited string, hex
// encoded. The same function mints and verifies: there is no stored "is
// valid" flag anywhere, so an attacker with database write access but no
// secret cannot forge a passing verification.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the hex-encoded HMAC-SHA256 of data under secret.
// Deterministic, no I/O.
func Sign(data string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signatureHex is the correct signature for data under
// secret. A malformed signature (bad hex, wrong length) is a verification
// failure, not an error: forged and garbled codes must be indistinguishable
// to the caller. The comparison is constant time.
func Verify(data, signatureHex string, secret []byte) bool {
	presented, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(data))
	expected := mac.Sum(nil)

	// hmac.Equal is constant time and handles the length check.
	return hmac.Equal(presented, expected)
}
