package compose

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NowakAdmin/PosPrintAgent/internal/escpos"
)

func newComposer(t *testing.T) *Composer {
	t.Helper()
	codec, err := escpos.NewCodec("cp437")
	require.NoError(t, err)
	return New(escpos.NewBuilder(codec, escpos.DefaultLabelOptions()), codec, zerolog.Nop())
}

var initSeq = []byte{0x1B, 0x40}

func TestComposeSingle(t *testing.T) {
	c := newComposer(t)

	doc, err := c.ComposeSingle(Record{Name: "Bread", Barcode: "96385070"})
	require.NoError(t, err)

	out := doc.Bytes()
	assert.True(t, bytes.HasPrefix(out, initSeq))
	assert.True(t, bytes.Contains(out, append([]byte{0x1D, 0x6B, 68, 7}, "9638507"...)))
}

func TestComposeSingleClassifiesRawValue(t *testing.T) {
	doc, err := newComposer(t).ComposeSingle(Record{Name: "Padded", Barcode: " 4006381333937"})
	require.NoError(t, err)

	assert.True(t, bytes.Contains(doc.Bytes(), append([]byte{0x1D, 0x6B, 73, 14}, " 4006381333937"...)))
	assert.False(t, bytes.Contains(doc.Bytes(), []byte{0x1D, 0x6B, 67}))
}

func TestComposeSingleWithoutBarcode(t *testing.T) {
	_, err := newComposer(t).ComposeSingle(Record{Name: "Loose nuts"})
	assert.ErrorIs(t, err, ErrNoBarcode)
}

func TestComposeBatchSkipsRecordsWithoutBarcode(t *testing.T) {
	c := newComposer(t)

	batch, err := c.ComposeBatch([]Record{
		{Name: "First", Barcode: "4006381333931"},
		{Name: "Empty", Barcode: ""},
		{Name: "Second", Barcode: "SKU-2"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, batch.Labels)
	require.Len(t, batch.Skipped, 1)
	assert.Equal(t, 1, batch.Skipped[0].Index)
	assert.ErrorIs(t, batch.Skipped[0].Reason, ErrNoBarcode)

	out := batch.Document.Bytes()
	assert.Equal(t, 2, bytes.Count(out, initSeq))

	first := bytes.Index(out, []byte("First"))
	second := bytes.Index(out, []byte("Second"))
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)

	one, err := c.ComposeSingle(Record{Name: "First", Barcode: "4006381333931"})
	require.NoError(t, err)
	two, err := c.ComposeSingle(Record{Name: "Second", Barcode: "SKU-2"})
	require.NoError(t, err)

	want := append(append(one.Bytes(), 0x0A), two.Bytes()...)
	assert.Equal(t, want, out)
}

func TestComposeBatchSkipsOversizedBarcode(t *testing.T) {
	batch, err := newComposer(t).ComposeBatch([]Record{
		{Name: "Huge", Barcode: strings.Repeat("X", 400)},
		{Name: "Fine", Barcode: "96385074"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, batch.Labels)
	require.Len(t, batch.Skipped, 1)
	assert.ErrorIs(t, batch.Skipped[0].Reason, escpos.ErrBarcodeTooLong)
}

func TestComposeBatchNothingPrintable(t *testing.T) {
	batch, err := newComposer(t).ComposeBatch([]Record{{Name: "a"}, {Name: "b", Barcode: "  "}})
	assert.ErrorIs(t, err, ErrNothingToPrint)
	assert.Len(t, batch.Skipped, 2)
	assert.True(t, batch.Document.Empty())
}

func TestReceiptBytesPassesTextThrough(t *testing.T) {
	c := newComposer(t)

	out, err := c.ReceiptBytes("TOTAL  12.50\n")
	require.NoError(t, err)
	assert.Equal(t, []byte("TOTAL  12.50\n"), out)

	_, err = c.ReceiptBytes("")
	assert.ErrorIs(t, err, ErrEmptyReceipt)
}

func TestFormatReceipt(t *testing.T) {
	sale := Sale{Transaction: Transaction{ID: "T-1", Total: 3}}

	text, err := FormatReceipt(context.Background(), FormatterFunc(func(_ context.Context, s Sale) (string, error) {
		return "receipt " + s.Transaction.ID, nil
	}), sale)
	require.NoError(t, err)
	assert.Equal(t, "receipt T-1", text)

	boom := errors.New("boom")
	_, err = FormatReceipt(context.Background(), FormatterFunc(func(context.Context, Sale) (string, error) {
		return "", boom
	}), sale)
	assert.ErrorIs(t, err, boom)

	_, err = FormatReceipt(context.Background(), nil, sale)
	assert.Error(t, err)
}
