package order

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// trackingPrefix brands customer-facing tracking numbers.
const trackingPrefix = "RIV"

// NewTrackingNumber generates a human-facing tracking number of the form
// RIV-<yyyymmdd>-<4-digit-random>. The 4-digit space can collide within a
// day; uniqueness is enforced by the orders table constraint and callers
// regenerate on ErrTrackingNumberTaken.
func NewTrackingNumber(now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(10_000))
	if err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// fall back to the clock rather than panicking mid-checkout.
		n = big.NewInt(now.UnixNano() % 10_000)
	}
	return fmt.Sprintf("%s-%s-%04d", trackingPrefix, now.Format("20060102"), n.Int64())
}

// NewPlacedTracking seeds the tracking record created atomically with an order.
func NewPlacedTracking(o *Order, now time.Time) *Tracking {
	return &Tracking{
		OrderID:        o.ID,
		TrackingNumber: o.TrackingNumber,
		UserID:         o.UserID,
		CurrentStatus:  string(StatusPlaced),
		Events: []TrackingEvent{{
			Status:    string(StatusPlaced),
			Message:   "Order placed",
			Timestamp: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
