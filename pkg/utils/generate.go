package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

const refundCodePrefix = "REFUND-"

// ==================== CODES ====================

// GenerateBookingCode returns the opaque, URL-safe code shown to customers.
func GenerateBookingCode() string {
	return uuid.NewString()
}

// GeneratePaymentCode names payment rows that have no provider transaction code.
func GeneratePaymentCode() string {
	return "PAY-" + uuid.NewString()
}

// GenerateRefundID doubles as the provider idempotency key and the refund row's payment code.
func GenerateRefundID() string {
	return refundCodePrefix + uuid.NewString()
}

// BookingReference is the code customers put in bank-transfer memos.
func BookingReference(bookingID int64) string {
	return fmt.Sprintf("BOOK%d", bookingID)
}

// ==================== TOKEN ====================

// GenerateVerificationToken returns 32 random bytes, hex encoded.
func GenerateVerificationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate verification token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
