package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmountCovers(t *testing.T) {
	assert.True(t, AmountCovers(150000, 150000))
	assert.True(t, AmountCovers(150000.004, 150000))
	assert.True(t, AmountCovers(200000, 150000))
	assert.False(t, AmountCovers(149999.99, 150000))
	assert.True(t, AmountCovers(0.1+0.2, 0.3))
}

func TestRoundMoney(t *testing.T) {
	assert.Equal(t, 10.01, RoundMoney(10.006))
	assert.Equal(t, 150000.0, RoundMoney(100000*1.5))
	assert.Equal(t, int64(1999), ToCents(19.99))
	assert.Equal(t, 19.99, FromCents(1999))
}
