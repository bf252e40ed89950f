package barcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDigit(t *testing.T) {
	tests := []struct {
		body string
		want int
	}{
		{"400638133393", 1},
		{"9638507", 4},
		{"03600029145", 2},
		{"000000000000", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckDigit(tt.body))
		})
	}
}

func TestDetectEAN13RecomputesCheckDigit(t *testing.T) {
	p := Detect("4006381333937")

	assert.Equal(t, EAN13, p.Symbology)
	assert.Equal(t, "400638133393", p.Body)
	require.True(t, p.HasCheckDigit)
	assert.Equal(t, 1, p.CheckDigit)
	assert.Equal(t, "4006381333931", p.HumanReadable)
}

func TestDetectEAN8(t *testing.T) {
	p := Detect("96385070")

	assert.Equal(t, EAN8, p.Symbology)
	assert.Equal(t, "9638507", p.Body)
	assert.Equal(t, 4, p.CheckDigit)
	assert.Equal(t, "96385074", p.HumanReadable)
}

func TestDetectUPCAKeepsLeadingZeros(t *testing.T) {
	p := Detect("036000291459")

	assert.Equal(t, UPCA, p.Symbology)
	assert.Equal(t, "03600029145", p.Body)
	assert.Equal(t, "036000291452", p.HumanReadable)
}

func TestDetectFallsBackToCode128(t *testing.T) {
	inputs := []string{
		"ABC-123",
		"400638133393A",
		"12345",
		"12345678901234",
		"9638 507",
		"40063813339.1",
	}

	for _, raw := range inputs {
		t.Run(raw, func(t *testing.T) {
			p := Detect(raw)
			assert.Equal(t, CODE128, p.Symbology)
			assert.Equal(t, raw, p.Body)
			assert.Equal(t, raw, p.HumanReadable)
			assert.False(t, p.HasCheckDigit)
		})
	}
}

func TestDetectIsStableOnTruncatedBody(t *testing.T) {
	for _, raw := range []string{"4006381333937", "96385070", "036000291459"} {
		first := Detect(raw)
		for _, dummy := range []string{"0", "5", "9"} {
			again := Detect(first.Body + dummy)
			assert.Equal(t, first.Symbology, again.Symbology)
			assert.Equal(t, first.Body, again.Body)
			assert.Equal(t, first.CheckDigit, again.CheckDigit)
		}
	}
}

func TestHasValidCheckDigit(t *testing.T) {
	assert.True(t, HasValidCheckDigit("4006381333931"))
	assert.False(t, HasValidCheckDigit("4006381333937"))
	assert.True(t, HasValidCheckDigit("96385074"))
	assert.True(t, HasValidCheckDigit("SKU-42"))
}

func TestSymbologyString(t *testing.T) {
	assert.Equal(t, "EAN13", EAN13.String())
	assert.Equal(t, "EAN8", EAN8.String())
	assert.Equal(t, "UPCA", UPCA.String())
	assert.Equal(t, "CODE128", CODE128.String())
	assert.True(t, UPCA.Numeric())
	assert.False(t, CODE128.Numeric())
}
