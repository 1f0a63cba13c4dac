package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// Idempotency keys are derived from domain identifiers so a retried call
// after an unknown outcome is deduplicated by the gateway.

func CheckoutKey(jobID uuid.UUID) string {
	return fmt.Sprintf("checkout-%s", jobID)
}

func CaptureKey(jobID uuid.UUID) string {
	return fmt.Sprintf("capture-%s", jobID)
}

func PayoutKey(jobID, workerID uuid.UUID, attempt int) string {
	return fmt.Sprintf("payout-%s-%s-%d", jobID, workerID, attempt)
}

func ReferralBonusKey(workerID uuid.UUID) string {
	return fmt.Sprintf("referral-%s", workerID)
}
