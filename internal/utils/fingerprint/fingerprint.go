// Package fingerprint derives deterministic, collision-resistant request
// fingerprints used as idempotency keys for payment attempts.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/afyapay/payments_engine/internal/core/domain"
)

// Compute hashes the identifying parameters of a payment request together
// with a coarse time bucket. Identical requests within the same window map to
// the same fingerprint; the same request minutes apart (past the window) is
// treated as a new attempt.
func Compute(userID, resourceID string, amount domain.Money, at time.Time, window time.Duration) string {
	bucket := int64(0)
	if window > 0 {
		bucket = at.UTC().Unix() / int64(window.Seconds())
	}
	canonical := fmt.Sprintf("%s|%s|%s|%s|%d",
		userID, resourceID, amount.Amount.StringFixed(domain.MinorUnitPlaces), amount.Currency, bucket)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
