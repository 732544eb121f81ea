package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accounting-core/internal/apperr"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		status DocumentStatus
		event  DocumentEvent
		want   DocumentStatus
		ok     bool
	}{
		{StatusDraft, EventApprove, StatusApproved, true},
		{StatusDraft, EventPost, StatusPosted, true},
		{StatusApproved, EventPost, StatusPosted, true},
		{StatusDraft, EventEdit, StatusDraft, true},
		{StatusApproved, EventDelete, StatusApproved, true},
		{StatusPosted, EventAdjust, StatusPosted, true},
		{StatusPosted, EventVoid, StatusVoid, true},
		{StatusPosted, EventSettle, StatusPartial, true},
		{StatusPartial, EventSettle, StatusPartial, true},

		{StatusPosted, EventEdit, "", false},
		{StatusPosted, EventDelete, "", false},
		{StatusPosted, EventPost, "", false},
		{StatusPartial, EventVoid, "", false},
		{StatusPaid, EventVoid, "", false},
		{StatusPaid, EventSettle, "", false},
		{StatusVoid, EventPost, "", false},
		{StatusVoid, EventSettle, "", false},
		{StatusDraft, EventSettle, "", false},
		{StatusDraft, EventVoid, "", false},
		{StatusApproved, EventApprove, "", false},
	}
	for _, tt := range tests {
		next, err := Transition(tt.status, tt.event)
		if tt.ok {
			require.NoError(t, err, "%s + %s", tt.status, tt.event)
			assert.Equal(t, tt.want, next)
		} else {
			require.Error(t, err, "%s + %s", tt.status, tt.event)
			assert.Equal(t, apperr.InvalidStateTransition, apperr.KindOf(err))
		}
	}
}

func intp(n int) *int { return &n }

func TestBuildDocumentLines_Totals(t *testing.T) {
	// Two lines of 100 at 10% tax: total 220, tax computed per line.
	lines, err := BuildDocumentLines([]LineInputSpec{
		{ItemID: intp(1), Quantity: d("2"), UnitPrice: d("50"), TaxRate: d("0.10")},
		{AccountID: intp(40), Quantity: d("1"), UnitPrice: d("100"), TaxRate: d("0.10")},
	})
	require.NoError(t, err)

	subtotal, tax, total := DocumentTotals(lines)
	assert.True(t, subtotal.Equal(d("200")), "subtotal = %s", subtotal)
	assert.True(t, tax.Equal(d("20")), "tax = %s", tax)
	assert.True(t, total.Equal(d("220")), "total = %s", total)
}

func TestBuildDocumentLines_TaxPerLineNotOnSum(t *testing.T) {
	// 3 × 0.35 at 7.5%: per-line tax rounds each to 0.03, summing to 0.09;
	// tax on the summed base would give 0.08.
	lines, err := BuildDocumentLines([]LineInputSpec{
		{ItemID: intp(1), Quantity: d("1"), UnitPrice: d("0.35"), TaxRate: d("0.075")},
		{ItemID: intp(2), Quantity: d("1"), UnitPrice: d("0.35"), TaxRate: d("0.075")},
		{ItemID: intp(3), Quantity: d("1"), UnitPrice: d("0.35"), TaxRate: d("0.075")},
	})
	require.NoError(t, err)

	_, tax, _ := DocumentTotals(lines)
	assert.True(t, tax.Equal(d("0.09")), "tax = %s", tax)
}

func TestBuildDocumentLines_DiscountBeforeTax(t *testing.T) {
	lines, err := BuildDocumentLines([]LineInputSpec{
		{ItemID: intp(1), Quantity: d("4"), UnitPrice: d("25"), DiscountAmount: d("20"), TaxRate: d("0.10")},
	})
	require.NoError(t, err)
	assert.True(t, lines[0].LineTotal.Equal(d("80")))
	assert.True(t, lines[0].TaxAmount.Equal(d("8")))
}

func TestBuildDocumentLines_Validation(t *testing.T) {
	cases := []struct {
		name string
		spec LineInputSpec
	}{
		{"neither item nor account", LineInputSpec{Quantity: d("1"), UnitPrice: d("10")}},
		{"zero quantity", LineInputSpec{ItemID: intp(1), Quantity: d("0"), UnitPrice: d("10")}},
		{"negative price", LineInputSpec{ItemID: intp(1), Quantity: d("1"), UnitPrice: d("-10")}},
		{"negative discount", LineInputSpec{ItemID: intp(1), Quantity: d("1"), UnitPrice: d("10"), DiscountAmount: d("-1")}},
		{"discount exceeds gross", LineInputSpec{ItemID: intp(1), Quantity: d("1"), UnitPrice: d("10"), DiscountAmount: d("11")}},
		{"tax rate above 1", LineInputSpec{ItemID: intp(1), Quantity: d("1"), UnitPrice: d("10"), TaxRate: d("1.5")}},
		{"negative tax rate", LineInputSpec{ItemID: intp(1), Quantity: d("1"), UnitPrice: d("10"), TaxRate: d("-0.1")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildDocumentLines([]LineInputSpec{tc.spec})
			require.Error(t, err)
			assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
		})
	}

	_, err := BuildDocumentLines(nil)
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}

func TestAssertSameStockContent(t *testing.T) {
	current := []DocumentLine{
		{ItemID: intp(1), Quantity: d("5")},
		{AccountID: intp(40), Quantity: d("1")},
	}

	t.Run("price change passes", func(t *testing.T) {
		desired := []DocumentLine{
			{ItemID: intp(1), Quantity: d("5"), UnitPrice: d("99")},
			{AccountID: intp(41), Quantity: d("2")},
		}
		assert.NoError(t, assertSameStockContent(current, desired))
	})

	t.Run("quantity change rejected", func(t *testing.T) {
		desired := []DocumentLine{{ItemID: intp(1), Quantity: d("6")}}
		err := assertSameStockContent(current, desired)
		require.Error(t, err)
		assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
	})

	t.Run("item removal rejected", func(t *testing.T) {
		desired := []DocumentLine{{AccountID: intp(40), Quantity: d("1")}}
		err := assertSameStockContent(current, desired)
		require.Error(t, err)
	})
}

func TestDocumentTotals_HeaderConsistency(t *testing.T) {
	lines, err := BuildDocumentLines([]LineInputSpec{
		{ItemID: intp(1), Quantity: d("3"), UnitPrice: d("33.33"), TaxRate: d("0.18")},
	})
	require.NoError(t, err)
	_, _, total := DocumentTotals(lines)

	doc := &DocumentHeader{ID: 1, Total: total, Lines: lines}
	assert.NoError(t, assertTotalsConsistent(doc))

	doc.Total = total.Add(decimal.RequireFromString("0.01"))
	err = assertTotalsConsistent(doc)
	require.Error(t, err)
	assert.Equal(t, apperr.RoundingMismatch, apperr.KindOf(err))
}
