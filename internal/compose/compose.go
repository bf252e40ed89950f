// Package compose turns product and sale records into printable documents.
package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/NowakAdmin/PosPrintAgent/internal/barcode"
	"github.com/NowakAdmin/PosPrintAgent/internal/escpos"
)

var (
	ErrNoBarcode      = errors.New("compose: record has no barcode value")
	ErrNothingToPrint = errors.New("compose: no record has a printable barcode")
	ErrEmptyReceipt   = errors.New("compose: receipt text is empty")
)

// Record is a product as the label screens see it.
type Record struct {
	Name    string `json:"name"`
	Barcode string `json:"barcode"`
}

// Item is one line of a sale.
type Item struct {
	Name     string  `json:"name"`
	Barcode  string  `json:"barcode,omitempty"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// Transaction is the sale header.
type Transaction struct {
	ID        string  `json:"id"`
	CreatedAt string  `json:"created_at,omitempty"`
	Total     float64 `json:"total"`
	Payment   string  `json:"payment,omitempty"`
	Customer  string  `json:"customer,omitempty"`
}

// Sale is a completed transaction with its items.
type Sale struct {
	Transaction Transaction `json:"transaction"`
	Items       []Item      `json:"items"`
}

// ReceiptFormatter lays a sale out as finished receipt text. Layout is owned
// by the caller; the composer never inspects the result.
type ReceiptFormatter interface {
	Format(ctx context.Context, sale Sale) (string, error)
}

// FormatterFunc adapts a plain function to ReceiptFormatter.
type FormatterFunc func(ctx context.Context, sale Sale) (string, error)

func (f FormatterFunc) Format(ctx context.Context, sale Sale) (string, error) {
	return f(ctx, sale)
}

// Batch is the result of ComposeBatch.
type Batch struct {
	Document escpos.Document
	Labels   int
	Skipped  []Skipped
}

// Skipped records why a batch entry was left out.
type Skipped struct {
	Index  int
	Name   string
	Reason error
}

type Composer struct {
	builder *escpos.Builder
	codec   *escpos.Codec
	logger  zerolog.Logger
}

func New(builder *escpos.Builder, codec *escpos.Codec, logger zerolog.Logger) *Composer {
	return &Composer{
		builder: builder,
		codec:   codec,
		logger:  logger,
	}
}

// ComposeSingle builds the label block for one record.
func (c *Composer) ComposeSingle(rec Record) (escpos.Document, error) {
	// The value is classified as stored; surrounding blanks make it Code 128.
	code := rec.Barcode
	if strings.TrimSpace(code) == "" {
		return escpos.Document{}, ErrNoBarcode
	}

	if !barcode.HasValidCheckDigit(code) {
		c.logger.Warn().
			Str("barcode", code).
			Str("name", rec.Name).
			Msg("stored check digit disagrees with the recomputed one, printing recomputed")
	}

	doc, err := c.builder.BuildLabel(rec.Name, barcode.Detect(code))
	if err != nil {
		return escpos.Document{}, fmt.Errorf("label %q: %w", rec.Name, err)
	}

	return doc, nil
}

// ComposeBatch builds one label per usable record, in input order, with a
// blank line between blocks. Records without a usable barcode are skipped.
func (c *Composer) ComposeBatch(recs []Record) (Batch, error) {
	var (
		docs    []escpos.Document
		skipped []Skipped
	)

	for i, rec := range recs {
		doc, err := c.ComposeSingle(rec)
		if err != nil {
			skipped = append(skipped, Skipped{Index: i, Name: rec.Name, Reason: err})
			c.logger.Debug().Int("index", i).Str("name", rec.Name).Err(err).Msg("batch entry skipped")
			continue
		}
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		return Batch{Skipped: skipped}, ErrNothingToPrint
	}

	return Batch{
		Document: escpos.Concat(escpos.Feed(1), docs...),
		Labels:   len(docs),
		Skipped:  skipped,
	}, nil
}

// ReceiptBytes encodes finished receipt text for the wire. The text itself is
// passed through untouched apart from the code page conversion.
func (c *Composer) ReceiptBytes(text string) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyReceipt
	}
	return c.codec.Encode(text), nil
}

// FormatReceipt asks f for the receipt text of sale.
func FormatReceipt(ctx context.Context, f ReceiptFormatter, sale Sale) (string, error) {
	if f == nil {
		return "", errors.New("compose: no receipt formatter configured")
	}

	text, err := f.Format(ctx, sale)
	if err != nil {
		return "", fmt.Errorf("format receipt %s: %w", sale.Transaction.ID, err)
	}
	return text, nil
}
