// Package escpos builds byte-exact control streams for ESC/POS compatible
// receipt and label printers.
package escpos

import (
	"errors"
	"fmt"

	"github.com/NowakAdmin/PosPrintAgent/internal/barcode"
)

const (
	esc = 0x1B
	gs  = 0x1D
	lf  = 0x0A
)

var (
	ErrBarcodeEmpty   = errors.New("escpos: barcode data is empty")
	ErrBarcodeTooLong = errors.New("escpos: barcode data does not fit the length byte")
)

// MaxBarcodeData is the largest body PrintBarcode can frame with its single
// length byte.
const MaxBarcodeData = 255

// Command is one ordered byte fragment of a Document.
type Command []byte

type Alignment byte

const (
	AlignLeft   Alignment = 0x00
	AlignCenter Alignment = 0x01
)

// HRI is the position of the human readable digits relative to the bars.
type HRI byte

const (
	HRINone  HRI = 0x00
	HRIAbove HRI = 0x01
	HRIBelow HRI = 0x02
	HRIBoth  HRI = 0x03
)

// symbologyCodes is the GS k function-B type table. Frozen: these are the
// values the printer firmware expects.
var symbologyCodes = map[barcode.Symbology]byte{
	barcode.UPCA:    65,
	barcode.EAN13:   67,
	barcode.EAN8:    68,
	barcode.CODE128: 73,
}

// SymbologyCode returns the GS k type byte for s.
func SymbologyCode(s barcode.Symbology) byte {
	return symbologyCodes[s]
}

func Initialize() Command {
	return Command{esc, '@'}
}

func Align(a Alignment) Command {
	return Command{esc, 'a', byte(a)}
}

func Emphasis(on bool) Command {
	if on {
		return Command{esc, 'E', 0x01}
	}
	return Command{esc, 'E', 0x00}
}

func BarcodeHeight(n byte) Command {
	return Command{gs, 'h', n}
}

func BarcodeWidth(n byte) Command {
	return Command{gs, 'w', n}
}

func HRIPosition(p HRI) Command {
	return Command{gs, 'H', byte(p)}
}

// PrintBarcode frames data as GS k <code> <len> <data>.
func PrintBarcode(code byte, data string) (Command, error) {
	if data == "" {
		return nil, ErrBarcodeEmpty
	}
	if len(data) > MaxBarcodeData {
		return nil, fmt.Errorf("%w: %d bytes", ErrBarcodeTooLong, len(data))
	}

	cmd := make(Command, 0, 4+len(data))
	cmd = append(cmd, gs, 'k', code, byte(len(data)))
	cmd = append(cmd, data...)
	return cmd, nil
}

// Feed emits n line feeds.
func Feed(n int) Command {
	cmd := make(Command, n)
	for i := range cmd {
		cmd[i] = lf
	}
	return cmd
}

// Raw wraps already encoded bytes.
func Raw(b []byte) Command {
	return Command(append([]byte(nil), b...))
}
