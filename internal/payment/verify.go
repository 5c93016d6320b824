// Package payment holds the payment gateway client and the signature
// verification gate that stands in front of order finalization.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// ErrSignatureMismatch is returned when the gateway signature does not match
// the expected HMAC. The whole checkout fails; no order is created.
var ErrSignatureMismatch = errors.New("payment signature mismatch")

// Verifier checks gateway payment signatures: HMAC-SHA256 over
// "<gatewayOrderID>|<paymentID>" keyed with the shared webhook secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier with the gateway webhook secret.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Sign computes the hex-encoded signature for the given order and payment IDs.
func (v *Verifier) Sign(gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(gatewayOrderID))
	mac.Write([]byte("|"))
	mac.Write([]byte(paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares the supplied signature against the expected HMAC in
// constant time.
func (v *Verifier) Verify(gatewayOrderID, paymentID, signature string) error {
	supplied, err := hex.DecodeString(signature)
	if err != nil {
		return ErrSignatureMismatch
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(gatewayOrderID))
	mac.Write([]byte("|"))
	mac.Write([]byte(paymentID))

	if !hmac.Equal(supplied, mac.Sum(nil)) {
		return ErrSignatureMismatch
	}
	return nil
}
