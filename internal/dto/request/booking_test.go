package request

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeatIDList_AcceptsNumbersAndDigitStrings(t *testing.T) {
	var req LockSeatsRequest
	err := json.Unmarshal([]byte(`{"showtime_id": 4, "seat_ids": [12, "13", " 14 "]}`), &req)

	require.NoError(t, err)
	assert.Equal(t, SeatIDList{12, 13, 14}, req.SeatIDs)
}

func TestSeatIDList_RejectsNonNumeric(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		index int
	}{
		{"seat label", `["C8"]`, 0},
		{"fraction", `[1, 2.5]`, 1},
		{"negative", `[-3]`, 0},
		{"zero", `["0"]`, 0},
		{"empty string", `[1, 2, ""]`, 2},
		{"object", `[{"id": 1}]`, 0},
		{"not an array", `"12"`, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids SeatIDList
			err := json.Unmarshal([]byte(tt.body), &ids)

			var seatErr *SeatIDError
			require.ErrorAs(t, err, &seatErr)
			assert.Equal(t, tt.index, seatErr.Index)
		})
	}
}

func TestPaginatedRequest_Bounds(t *testing.T) {
	assert.Equal(t, 0, PaginatedRequest{Page: 0, PerPage: 10}.Offset())
	assert.Equal(t, 20, PaginatedRequest{Page: 3, PerPage: 10}.Offset())
	assert.Equal(t, DefaultPerPage, PaginatedRequest{PerPage: 0}.Limit())
	assert.Equal(t, MaxPerPage, PaginatedRequest{PerPage: 500}.Limit())
	assert.Equal(t, 100, PaginatedRequest{Page: 3, PerPage: 500}.Offset())
}
