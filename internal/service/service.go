// Package service is the boundary every outward surface (agent, local API,
// tray, CLI) goes through. It turns records into documents, hands them to the
// printer manager and converts failures into user-facing feedback.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/NowakAdmin/PosPrintAgent/internal/compose"
	"github.com/NowakAdmin/PosPrintAgent/internal/observability"
	"github.com/NowakAdmin/PosPrintAgent/internal/printer"
)

const (
	JobLabel   = "label"
	JobBatch   = "batch"
	JobReceipt = "receipt"
	JobTest    = "test_label"
)

// TestRecord is printed by PrintTestLabel.
var TestRecord = compose.Record{Name: "PosPrintAgent test", Barcode: "5901234123457"}

type Options struct {
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.ScanTimeout <= 0 {
		o.ScanTimeout = 10 * time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	return o
}

// JobResult describes one print job handed to the printer.
type JobResult struct {
	JobID   string          `json:"job_id"`
	Kind    string          `json:"kind"`
	Bytes   int             `json:"bytes"`
	Labels  int             `json:"labels,omitempty"`
	Skipped []SkippedRecord `json:"skipped,omitempty"`
}

type SkippedRecord struct {
	Index  int    `json:"index"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

type Service struct {
	manager  *printer.Manager
	composer *compose.Composer
	opts     Options
	logger   zerolog.Logger
	newID    func() string
}

func New(manager *printer.Manager, composer *compose.Composer, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		manager:  manager,
		composer: composer,
		opts:     opts.withDefaults(),
		logger:   logger,
		newID:    uuid.NewString,
	}
}

func (s *Service) Status() printer.ConnectionState {
	return s.manager.State()
}

func (s *Service) ListDevices(ctx context.Context) ([]printer.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ScanTimeout)
	defer cancel()

	devices, err := s.manager.ListDevices(ctx)
	if err != nil {
		observability.RecordPrintJob("scan", 0, errorKind(err))
		return nil, err
	}
	return devices, nil
}

// Connect opens a session to address. Calling it for the address that is
// already connected disconnects instead; connected reports which way it went.
func (s *Service) Connect(ctx context.Context, address string) (connected bool, err error) {
	st := s.manager.State()
	if st.Connected && st.PairedAddress == s.manager.Canonical(address) {
		s.Disconnect(ctx)
		return false, nil
	}

	if err = s.Pair(ctx, address); err != nil {
		return false, err
	}
	return true, nil
}

// Pair opens a session to address and remembers it. Unlike Connect it never
// disconnects.
func (s *Service) Pair(ctx context.Context, address string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	if err := s.manager.Connect(ctx, address); err != nil {
		observability.RecordPrintJob("connect", 0, errorKind(err))
		return err
	}
	return nil
}

func (s *Service) Disconnect(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	s.manager.Disconnect(ctx)
}

func (s *Service) PrintLabel(ctx context.Context, rec compose.Record) (JobResult, error) {
	doc, err := s.composer.ComposeSingle(rec)
	if err != nil {
		observability.RecordPrintJob(JobLabel, 0, errorKind(err))
		return JobResult{}, err
	}

	res := JobResult{Kind: JobLabel, Labels: 1}
	return s.send(ctx, res, doc.Bytes())
}

// PrintBatch prints every record that has a barcode as one transmission.
// Records without one are reported in the result, not as an error.
func (s *Service) PrintBatch(ctx context.Context, recs []compose.Record) (JobResult, error) {
	batch, err := s.composer.ComposeBatch(recs)
	skipped := make([]SkippedRecord, 0, len(batch.Skipped))
	for _, sk := range batch.Skipped {
		skipped = append(skipped, SkippedRecord{Index: sk.Index, Name: sk.Name, Reason: sk.Reason.Error()})
	}

	if err != nil {
		observability.RecordPrintJob(JobBatch, 0, errorKind(err))
		return JobResult{Kind: JobBatch, Skipped: skipped}, err
	}

	res := JobResult{Kind: JobBatch, Labels: batch.Labels, Skipped: skipped}
	return s.send(ctx, res, batch.Document.Bytes())
}

// PrintReceiptText sends already formatted receipt text.
func (s *Service) PrintReceiptText(ctx context.Context, text string) (JobResult, error) {
	data, err := s.composer.ReceiptBytes(text)
	if err != nil {
		observability.RecordPrintJob(JobReceipt, 0, errorKind(err))
		return JobResult{}, err
	}

	return s.send(ctx, JobResult{Kind: JobReceipt}, data)
}

func (s *Service) PrintReceipt(ctx context.Context, sale compose.Sale, formatter compose.ReceiptFormatter) (JobResult, error) {
	text, err := compose.FormatReceipt(ctx, formatter, sale)
	if err != nil {
		observability.RecordPrintJob(JobReceipt, 0, "format")
		return JobResult{}, err
	}

	return s.PrintReceiptText(ctx, text)
}

func (s *Service) PrintTestLabel(ctx context.Context) (JobResult, error) {
	res, err := s.PrintLabel(ctx, TestRecord)
	res.Kind = JobTest
	return res, err
}

func (s *Service) send(ctx context.Context, res JobResult, data []byte) (JobResult, error) {
	res.JobID = s.newID()

	ctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout+s.opts.WriteTimeout)
	defer cancel()

	if err := s.manager.Transmit(ctx, data); err != nil {
		observability.RecordPrintJob(res.Kind, 0, errorKind(err))
		s.logger.Warn().
			Err(err).
			Str("job_id", res.JobID).
			Str("kind", res.Kind).
			Msg("print job failed")
		return res, err
	}

	res.Bytes = len(data)
	observability.RecordPrintJob(res.Kind, res.Bytes, "")
	s.logger.Info().
		Str("job_id", res.JobID).
		Str("kind", res.Kind).
		Int("bytes", res.Bytes).
		Int("labels", res.Labels).
		Int("skipped", len(res.Skipped)).
		Msg("print job sent")
	return res, nil
}

func errorKind(err error) string {
	return Explain(err).Kind
}

// Feedback is what a caller shows the user for a failed operation.
type Feedback struct {
	Kind      string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

const (
	KindInvalidInput = "invalid_input"
	KindTimeout      = "timeout"
	KindInternal     = "internal"
)

// Explain converts any error returned by Service into Feedback.
func Explain(err error) Feedback {
	switch printer.KindOf(err) {
	case printer.TransportDisabled:
		return Feedback{
			Kind:    printer.TransportDisabled.String(),
			Message: "Printer connection is switched off. Turn on Bluetooth or serial access and try again.",
		}
	case printer.PeripheralNotFound:
		return Feedback{
			Kind:    printer.PeripheralNotFound.String(),
			Message: "The paired printer is no longer available. Reconnect required.",
		}
	case printer.ConnectFailed:
		if errors.Is(err, context.DeadlineExceeded) {
			break
		}
		return Feedback{
			Kind:      printer.ConnectFailed.String(),
			Message:   "Could not connect to the printer.",
			Retryable: true,
		}
	case printer.NotConnected:
		return Feedback{
			Kind:    printer.NotConnected.String(),
			Message: "No printer is connected. Choose a printer first.",
		}
	case printer.WriteFailed:
		if errors.Is(err, context.DeadlineExceeded) {
			break
		}
		return Feedback{
			Kind:      printer.WriteFailed.String(),
			Message:   "Sending data to the printer failed.",
			Retryable: true,
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Feedback{Kind: KindTimeout, Message: "The printer did not respond in time.", Retryable: true}
	case errors.Is(err, compose.ErrNoBarcode),
		errors.Is(err, compose.ErrNothingToPrint),
		errors.Is(err, compose.ErrEmptyReceipt):
		return Feedback{Kind: KindInvalidInput, Message: err.Error()}
	}

	return Feedback{Kind: KindInternal, Message: err.Error()}
}
