package expense

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestParseTaxType(t *testing.T) {
	tests := []struct {
		raw  string
		want TaxType
	}{
		{"IVA", TaxIVA},
		{"iva", TaxIVA},
		{"vat", TaxIVA},
		{"002", TaxIVA},
		{"ISR", TaxISR},
		{"001", TaxISR},
		{"IEPS", TaxIEPS},
		{"excise", TaxIEPS},
		{"impuesto raro", TaxOther},
		{"", TaxOther},
	}

	for _, tt := range tests {
		if got := ParseTaxType(tt.raw); got != tt.want {
			t.Errorf("ParseTaxType(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseTaxKind(t *testing.T) {
	assert.Equal(t, KindWithheld, ParseTaxKind("retención"))
	assert.Equal(t, KindWithheld, ParseTaxKind("RETENCION"))
	assert.Equal(t, KindWithheld, ParseTaxKind("withheld"))
	assert.Equal(t, KindTransferred, ParseTaxKind("traslado"))
	assert.Equal(t, KindTransferred, ParseTaxKind(""))
	assert.Equal(t, KindTransferred, ParseTaxKind("anything else"))
}

func TestTaxSchedule_Totals(t *testing.T) {
	s := &TaxSchedule{
		Lines: []TaxLine{
			{Type: TaxIVA, Kind: KindTransferred, Amount: dec("160")},
			{Type: TaxIEPS, Kind: KindTransferred, Amount: dec("40")},
			{Type: TaxISR, Kind: KindWithheld, Amount: dec("100")},
			{Type: TaxIVA, Kind: KindWithheld, Amount: dec("106.67")},
		},
	}

	totals := s.Totals()
	assert.True(t, totals.Transferred.Equal(dec("200")), "transferred = %s", totals.Transferred)
	assert.True(t, totals.Withheld.Equal(dec("206.67")), "withheld = %s", totals.Withheld)
}

func TestTaxSchedule_Totals_Nil(t *testing.T) {
	var s *TaxSchedule
	totals := s.Totals()
	assert.True(t, totals.Transferred.IsZero())
	assert.True(t, totals.Withheld.IsZero())
}

func TestTaxSchedule_Lines_SkipNonPositive(t *testing.T) {
	s := &TaxSchedule{
		Lines: []TaxLine{
			{Type: TaxIVA, Kind: KindTransferred, Amount: dec("160")},
			{Type: TaxIEPS, Kind: KindTransferred, Amount: decimal.Zero},
			{Type: TaxISR, Kind: KindWithheld, Amount: dec("0")},
		},
	}

	assert.Len(t, s.TransferredLines(), 1)
	assert.Empty(t, s.WithheldLines())
}
