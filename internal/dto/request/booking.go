package request

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SeatIDList accepts JSON integers and all-digit strings. Seat labels such as
// "C8" are a presentation concern and are rejected while decoding.
type SeatIDList []int64

// SeatIDError reports the first seat id that is not a positive integer.
type SeatIDError struct {
	Index int
	Value string
}

func (e *SeatIDError) Error() string {
	return fmt.Sprintf("seat_ids[%d]: %s is not a numeric seat id", e.Index, e.Value)
}

func (l *SeatIDList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return &SeatIDError{Index: -1, Value: string(data)}
	}

	ids := make(SeatIDList, 0, len(raw))
	for i, item := range raw {
		id, ok := parseSeatID(item)
		if !ok {
			return &SeatIDError{Index: i, Value: string(item)}
		}
		ids = append(ids, id)
	}

	*l = ids
	return nil
}

func parseSeatID(item json.RawMessage) (int64, bool) {
	item = bytes.TrimSpace(item)

	var text string
	if len(item) > 0 && item[0] == '"' {
		if err := json.Unmarshal(item, &text); err != nil {
			return 0, false
		}
		text = strings.TrimSpace(text)
	} else {
		text = string(item)
	}

	if text == "" {
		return 0, false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, false
		}
	}

	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type LockSeatsRequest struct {
	UserID     *int64     `json:"user_id,omitempty" validate:"omitempty,gt=0"`
	ShowtimeID int64      `json:"showtime_id" validate:"required,gt=0"`
	SeatIDs    SeatIDList `json:"seat_ids" validate:"required,min=1,max=20,unique,dive,gt=0"`
}

type InitiatePaymentRequest struct {
	Provider string `json:"provider" validate:"required,max=32"`
}

type ConfirmPaymentRequest struct {
	PaymentMethod  string         `json:"payment_method" validate:"required,max=32"`
	PaymentPayload PaymentPayload `json:"payment_payload"`
}

type PaymentPayload struct {
	TransactionRef string   `json:"transaction_ref" validate:"omitempty,max=128"`
	ResponseCode   string   `json:"response_code" validate:"omitempty,max=32"`
	Amount         *float64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
}

type RefundRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}
