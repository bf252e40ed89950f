package escpos

import (
	"strings"

	"github.com/NowakAdmin/PosPrintAgent/internal/barcode"
)

const (
	DefaultBarcodeHeight = 80
	DefaultBarcodeWidth  = 2

	minBarcodeWidth = 2
	maxBarcodeWidth = 6
)

// LabelOptions controls the bar geometry of a label block.
type LabelOptions struct {
	Height int
	Width  int
}

// DefaultLabelOptions returns the geometry used when nothing is configured.
func DefaultLabelOptions() LabelOptions {
	return LabelOptions{Height: DefaultBarcodeHeight, Width: DefaultBarcodeWidth}
}

func (o LabelOptions) normalized() (height, width byte) {
	h := o.Height
	if h <= 0 {
		h = DefaultBarcodeHeight
	}
	if h > 255 {
		h = 255
	}

	w := o.Width
	if w <= 0 {
		w = DefaultBarcodeWidth
	}
	if w < minBarcodeWidth {
		w = minBarcodeWidth
	}
	if w > maxBarcodeWidth {
		w = maxBarcodeWidth
	}

	return byte(h), byte(w)
}

// Builder assembles label blocks.
type Builder struct {
	codec *Codec
	opts  LabelOptions
}

// NewBuilder returns a builder encoding text with codec. A nil codec sends
// text bytes as-is.
func NewBuilder(codec *Codec, opts LabelOptions) *Builder {
	return &Builder{codec: codec, opts: opts}
}

// BuildLabel lays out one label: optional bold centred name, then the
// barcode with HRI digits below. The bars always encode payload.Body.
func (b *Builder) BuildLabel(name string, payload barcode.Payload) (Document, error) {
	printCmd, err := PrintBarcode(SymbologyCode(payload.Symbology), payload.Body)
	if err != nil {
		return Document{}, err
	}

	height, width := b.opts.normalized()

	cmds := []Command{
		Initialize(),
		Align(AlignCenter),
	}

	if name = strings.TrimSpace(name); name != "" {
		cmds = append(cmds,
			Emphasis(true),
			b.codec.Text(name),
			Feed(1),
			Emphasis(false),
			Feed(1),
		)
	}

	cmds = append(cmds,
		Align(AlignCenter),
		BarcodeHeight(height),
		BarcodeWidth(width),
		HRIPosition(HRIBelow),
		printCmd,
		Feed(2),
		Align(AlignLeft),
		Feed(2),
	)

	return NewDocument(cmds...), nil
}
