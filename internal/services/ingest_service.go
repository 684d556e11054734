// Package services – IngestService
//
// This file implements the register ingest pipeline. An inbound SMS goes
// through authentication, fragment reassembly, positional decoding with the
// checksum gate, per-field degradation, the upsert by timestamp id, and the
// invalidation of the register cache tag. Only the id (date) and the checksum
// are strict gates: any other bad field is dropped or truncated so that one
// garbled value does not discard an otherwise valid observation.
//
// The bulk path (SubmitBatch) is the trusted variant: no authentication, no
// checksum, one entry per line, per-line outcomes.
//
// Observability: public methods are OpenTelemetry-instrumented and every
// outcome is counted in observability.IngestOutcomes.
package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/juju/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-travel-register/internal/codec"
	"github.com/tbourn/go-travel-register/internal/domain"
	"github.com/tbourn/go-travel-register/internal/fragment"
	"github.com/tbourn/go-travel-register/internal/observability"
	"github.com/tbourn/go-travel-register/internal/repo"
)

// ChannelSMS scopes receipts of the SMS webhook.
const ChannelSMS = "sms"

// DefaultReceiptTTL is how long a processed message id is remembered.
const DefaultReceiptTTL = 48 * time.Hour

// InboundSMS is one message delivered by the SMS provider webhook.
type InboundSMS struct {
	// AccountSID identifies the provider account that sent the webhook.
	AccountSID string
	// From is the sender's phone number; fragments are buffered per sender.
	From string
	// To is the register's own number.
	To string
	// Body is the raw message text.
	Body string
	// MessageSID is the provider's message id, used to detect retries.
	MessageSID string
}

// RejectReason classifies a rejected submission.
type RejectReason string

// Reject reasons.
const (
	RejectAuth       RejectReason = "auth"
	RejectMalformed  RejectReason = "malformed"
	RejectValidation RejectReason = "validation"
)

// Outcome reports what Submit did with a message. A rejection is not an error:
// Submit returns a non-nil error only for store failures.
type Outcome struct {
	// Accepted is true unless the message was rejected.
	Accepted bool
	// Stored is true when an entry was written.
	Stored bool
	// Replayed is true when the message id was already processed.
	Replayed bool
	// Reason and Err describe a rejection.
	Reason RejectReason
	Err    error
	// EntryID is the id of the stored entry.
	EntryID string
	// Created is true when the entry did not exist before.
	Created bool
	// Degraded lists the fields replaced by their default.
	Degraded []string
}

// Partial reports whether the message was a buffered, incomplete fragment.
func (o Outcome) Partial() bool { return o.Accepted && !o.Stored && !o.Replayed }

func rejected(reason RejectReason, err error) Outcome {
	return Outcome{Reason: reason, Err: err}
}

// IngestService turns inbound messages into register entries.
type IngestService struct {
	DB        *gorm.DB
	Repo      EntryRepo
	Codec     *codec.Codec
	Assembler *fragment.Assembler
	Cache     Invalidator
	Clock     clock.Clock

	// AccountSID and Number are the expected provider account and destination.
	// When either is empty every message is rejected.
	AccountSID string
	Number     string

	// ReceiptTTL bounds retry detection; <= 0 means DefaultReceiptTTL.
	ReceiptTTL time.Duration
}

// Submit runs one inbound SMS through the pipeline.
func (s *IngestService) Submit(ctx context.Context, msg InboundSMS) (Outcome, error) {
	tr := otel.Tracer("services/IngestService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(attribute.String("sms.sid", msg.MessageSID)),
	)
	defer span.End()

	out, err := s.submit(ctx, msg)
	label := outcomeLabel(out, err)
	observability.IngestOutcomes.WithLabelValues(ChannelSMS, label).Inc()
	span.SetAttributes(attribute.String("ingest.outcome", label))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failure")
	}
	return out, err
}

func (s *IngestService) submit(ctx context.Context, msg InboundSMS) (Outcome, error) {
	if !s.authorized(msg) {
		return rejected(RejectAuth, ErrAuthRejected), nil
	}

	sid := strings.TrimSpace(msg.MessageSID)
	if rec, err := repo.GetReceipt(ctx, s.DB, ChannelSMS, sid, s.now()); err == nil {
		return Outcome{
			Accepted: true,
			Replayed: true,
			Stored:   rec.Status == domain.ReceiptStored,
			EntryID:  rec.EntryID,
		}, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return Outcome{}, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}

	body := strings.TrimSpace(msg.Body)
	if fragment.IsFragment(body) {
		assembled, complete, err := s.Assembler.Ingest(ctx, msg.From, body)
		if errors.Is(err, fragment.ErrNoSender) {
			return rejected(RejectMalformed, fmt.Errorf("%w: %w", ErrMalformedInput, err)), nil
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", ErrStoreFailure, err)
		}
		if !complete {
			observability.Fragments.WithLabelValues("buffered").Inc()
			s.recordReceipt(ctx, sid, "", domain.ReceiptPartial)
			return Outcome{Accepted: true}, nil
		}
		observability.Fragments.WithLabelValues("assembled").Inc()
		body = strings.TrimSpace(assembled)
	}

	fields, err := codec.Split(body)
	if err != nil {
		return rejected(RejectMalformed, fmt.Errorf("%w: %w", ErrMalformedInput, err)), nil
	}
	res := s.Codec.Decode(fields)
	if res.Fatal() {
		return rejected(RejectValidation, fmt.Errorf("%w: %w", ErrValidationRejected, res.FatalErr())), nil
	}

	entry, degraded := res.Degrade()
	entry.Source = domain.SourceSMS
	created, err := s.Repo.UpsertEntry(ctx, s.DB, &entry)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	countDegraded(degraded)

	if _, err := s.Cache.Invalidate(ctx, TagRegister); err != nil {
		return Outcome{}, err
	}
	s.recordReceipt(ctx, sid, entry.ID, domain.ReceiptStored)

	return Outcome{
		Accepted: true,
		Stored:   true,
		EntryID:  entry.ID,
		Created:  created,
		Degraded: degraded,
	}, nil
}

// authorized compares the account and destination with the configuration
// in constant time. An unconfigured service authorizes nothing.
func (s *IngestService) authorized(msg InboundSMS) bool {
	if s.AccountSID == "" || s.Number == "" {
		return false
	}
	okAccount := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(msg.AccountSID)), []byte(s.AccountSID)) == 1
	okNumber := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(msg.To)), []byte(s.Number)) == 1
	return okAccount && okNumber
}

// recordReceipt remembers a processed message id. Failures are ignored: the
// worst case is a retried webhook being processed again, which the upsert
// by id absorbs.
func (s *IngestService) recordReceipt(ctx context.Context, sid, entryID string, status int) {
	if sid == "" {
		return
	}
	ttl := s.ReceiptTTL
	if ttl <= 0 {
		ttl = DefaultReceiptTTL
	}
	_, _ = repo.CreateReceipt(ctx, s.DB, ChannelSMS, sid, entryID, status, s.now(), ttl)
}

func (s *IngestService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

// LineResult is the outcome of one line of a bulk submission.
type LineResult struct {
	// Line is the 1-based line number in the submitted text.
	Line     int      `json:"line"`
	Text     string   `json:"text"`
	EntryID  string   `json:"entry_id,omitempty"`
	Created  bool     `json:"created"`
	Degraded []string `json:"degraded,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// BatchReport summarizes a bulk submission.
type BatchReport struct {
	Created int          `json:"created"`
	Updated int          `json:"updated"`
	InError int          `json:"in_error"`
	Lines   []LineResult `json:"lines"`
	// Rejected holds the rejected lines, newline-separated, ready to be fixed
	// and submitted again.
	Rejected string `json:"rejected"`
}

// SubmitBatch decodes and stores newline-separated entries with the trusted
// decoder. Blank lines are skipped. A line that fails the id gate or the
// field count is reported in error; other bad fields are degraded. A store
// failure aborts the batch and is returned along with the partial report.
func (s *IngestService) SubmitBatch(ctx context.Context, text string) (BatchReport, error) {
	tr := otel.Tracer("services/IngestService")
	ctx, span := tr.Start(ctx, "SubmitBatch")
	defer span.End()

	text = strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(text)

	var (
		report        BatchReport
		rejectedLines []string
		storeErr      error
	)
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lr := LineResult{Line: i + 1, Text: line}

		fields, err := codec.Split(line)
		if err != nil {
			lr.Error = fmt.Errorf("%w: %w", ErrMalformedInput, err).Error()
			report.addRejected(lr, RejectMalformed)
			rejectedLines = append(rejectedLines, line)
			continue
		}
		res := s.Codec.DecodeTrusted(fields)
		if res.Fatal() {
			lr.Error = fmt.Errorf("%w: %w", ErrValidationRejected, res.FatalErr()).Error()
			report.addRejected(lr, RejectValidation)
			rejectedLines = append(rejectedLines, line)
			continue
		}

		entry, degraded := res.Degrade()
		entry.Source = domain.SourceBatch
		created, err := s.Repo.UpsertEntry(ctx, s.DB, &entry)
		if err != nil {
			storeErr = fmt.Errorf("%w: line %d: %w", ErrStoreFailure, lr.Line, err)
			observability.IngestOutcomes.WithLabelValues(domain.SourceBatch, "error").Inc()
			break
		}
		countDegraded(degraded)
		observability.IngestOutcomes.WithLabelValues(domain.SourceBatch, "stored").Inc()

		lr.EntryID, lr.Created, lr.Degraded = entry.ID, created, degraded
		if created {
			report.Created++
		} else {
			report.Updated++
		}
		report.Lines = append(report.Lines, lr)
	}
	report.Rejected = strings.Join(rejectedLines, "\n")

	span.SetAttributes(
		attribute.Int("batch.created", report.Created),
		attribute.Int("batch.updated", report.Updated),
		attribute.Int("batch.in_error", report.InError),
	)

	if len(report.Lines) == 0 && storeErr == nil {
		return report, ErrEmptyBatch
	}
	if report.Created+report.Updated > 0 {
		if _, err := s.Cache.Invalidate(ctx, TagRegister); err != nil && storeErr == nil {
			storeErr = err
		}
	}
	if storeErr != nil {
		span.RecordError(storeErr)
		span.SetStatus(codes.Error, "store failure")
	}
	return report, storeErr
}

func (r *BatchReport) addRejected(lr LineResult, reason RejectReason) {
	r.InError++
	r.Lines = append(r.Lines, lr)
	observability.IngestOutcomes.WithLabelValues(domain.SourceBatch, string(reason)).Inc()
}

func countDegraded(fields []string) {
	for _, f := range fields {
		observability.DegradedFields.WithLabelValues(f).Inc()
	}
}

func outcomeLabel(o Outcome, err error) string {
	switch {
	case err != nil:
		return "error"
	case o.Replayed:
		return "replayed"
	case o.Stored:
		return "stored"
	case o.Accepted:
		return "partial"
	default:
		return string(o.Reason)
	}
}
