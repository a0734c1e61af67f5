package response

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPaginatedResponse(t *testing.T) {
	page := NewPaginatedResponse([]int{1, 2}, 1, 2, 5)

	assert.Equal(t, 3, page.Pagination.TotalPages)
	assert.True(t, page.Pagination.HasNext)

	last := NewPaginatedResponse([]int{5}, 3, 2, 5)
	assert.False(t, last.Pagination.HasNext)
}

func TestNewPaginatedResponse_EmptyPageEncodesAsArray(t *testing.T) {
	raw, err := json.Marshal(NewPaginatedResponse[BookingResponse](nil, 1, 10, 0))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"data": [],
		"pagination": {"page": 1, "per_page": 10, "total": 0, "total_pages": 0, "has_next": false}
	}`, string(raw))
}
