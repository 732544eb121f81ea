package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accounting-core/internal/apperr"
)

func receiptLine(itemID int, lineTotal string) DocumentLine {
	return DocumentLine{ItemID: &itemID, LineTotal: decimal.RequireFromString(lineTotal)}
}

func TestAllocateLandedCost_ProportionalSplit(t *testing.T) {
	shares, err := allocateLandedCost(d("100"), []DocumentLine{
		receiptLine(1, "600"),
		receiptLine(2, "400"),
	})
	require.NoError(t, err)
	require.Len(t, shares, 2)
	assert.True(t, shares[0].Equal(d("60")), "share 0 = %s", shares[0])
	assert.True(t, shares[1].Equal(d("40")), "share 1 = %s", shares[1])
}

func TestAllocateLandedCost_RemainderToLastLine(t *testing.T) {
	shares, err := allocateLandedCost(d("100"), []DocumentLine{
		receiptLine(1, "100"),
		receiptLine(2, "100"),
		receiptLine(3, "100"),
	})
	require.NoError(t, err)
	require.Len(t, shares, 3)
	assert.True(t, shares[0].Equal(d("33.33")))
	assert.True(t, shares[1].Equal(d("33.33")))
	assert.True(t, shares[2].Equal(d("33.34")), "last share absorbs the residue, got %s", shares[2])

	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s)
	}
	assert.True(t, sum.Equal(d("100")))
}

func TestAllocateLandedCost_SingleLine(t *testing.T) {
	shares, err := allocateLandedCost(d("12.34"), []DocumentLine{receiptLine(1, "500")})
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.True(t, shares[0].Equal(d("12.34")))
}

func TestAllocateLandedCost_ZeroBaseRejected(t *testing.T) {
	_, err := allocateLandedCost(d("50"), []DocumentLine{receiptLine(1, "0")})
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}
