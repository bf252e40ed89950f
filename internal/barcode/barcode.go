// Package barcode classifies product codes into a printable symbology and
// recomputes the GS1 check digit for the numeric ones.
package barcode

import "strconv"

type Symbology int

const (
	CODE128 Symbology = iota
	EAN13
	EAN8
	UPCA
)

func (s Symbology) String() string {
	switch s {
	case EAN13:
		return "EAN13"
	case EAN8:
		return "EAN8"
	case UPCA:
		return "UPCA"
	default:
		return "CODE128"
	}
}

// Numeric reports whether the symbology carries a GS1 check digit.
func (s Symbology) Numeric() bool {
	return s == EAN13 || s == EAN8 || s == UPCA
}

// Payload is what gets sent to the printer for one barcode.
//
// For numeric symbologies Body excludes the check digit: the printer appends
// its own, and HumanReadable is what it is expected to print under the bars.
type Payload struct {
	Symbology     Symbology
	Body          string
	CheckDigit    int
	HasCheckDigit bool
	HumanReadable string
}

var lengths = map[int]Symbology{
	13: EAN13,
	8:  EAN8,
	12: UPCA,
}

// Detect picks a symbology by exact digit count of raw. For EAN13, EAN8 and
// UPCA the last input digit is always dropped and the check digit recomputed
// over the rest. Anything else passes through unchanged as CODE128.
func Detect(raw string) Payload {
	if sym, ok := lengths[len(raw)]; ok && allDigits(raw) {
		body := raw[:len(raw)-1]
		check := CheckDigit(body)
		return Payload{
			Symbology:     sym,
			Body:          body,
			CheckDigit:    check,
			HasCheckDigit: true,
			HumanReadable: body + strconv.Itoa(check),
		}
	}

	return Payload{
		Symbology:     CODE128,
		Body:          raw,
		HumanReadable: raw,
	}
}

// CheckDigit computes the GS1 mod-10 check digit of body. Digits are weighted
// 3,1,3,1... starting from the rightmost one. Non-digit bytes are ignored.
func CheckDigit(body string) int {
	sum := 0
	weight := 3
	for i := len(body) - 1; i >= 0; i-- {
		c := body[i]
		if c < '0' || c > '9' {
			continue
		}
		sum += int(c-'0') * weight
		weight = 4 - weight
	}

	return (10 - sum%10) % 10
}

// HasValidCheckDigit reports whether a numeric code's own trailing digit
// matches the recomputed one. It returns true for CODE128 input, which has
// nothing to verify.
func HasValidCheckDigit(raw string) bool {
	p := Detect(raw)
	if !p.HasCheckDigit {
		return true
	}

	return raw == p.HumanReadable
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}
