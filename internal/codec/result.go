package codec

import (
	"errors"
	"sort"

	"github.com/tbourn/go-travel-register/internal/domain"
)

// Result is the outcome of decoding one entry: the best-effort entry and the
// errors keyed by field name. Failed optional fields are left nil in Entry.
type Result struct {
	Entry  domain.RegisterEntry
	Errors map[string]error
}

func newResult() Result {
	return Result{Errors: make(map[string]error)}
}

func (r *Result) fail(field string, err error) {
	r.Errors[field] = err
}

// Err returns the error recorded for field, or nil.
func (r Result) Err(field string) error { return r.Errors[field] }

// OK reports whether no field failed.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// Fatal reports whether the entry must be rejected: a bad id or a checksum
// mismatch. Every other field error can be degraded.
func (r Result) Fatal() bool {
	return r.Errors[FieldID] != nil || r.Errors[FieldChecksum] != nil
}

// FatalErr joins the fatal errors, or returns nil.
func (r Result) FatalErr() error {
	return errors.Join(r.Errors[FieldID], r.Errors[FieldChecksum])
}

// Fields returns the names of the failed fields in sorted order.
func (r Result) Fields() []string {
	out := make([]string, 0, len(r.Errors))
	for f := range r.Errors {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Degrade replaces every failed optional field by its default (absent, or
// truncated for the message) and returns the entry along with the names of the
// degraded fields. It must not be called on a Fatal result.
func (r Result) Degrade() (domain.RegisterEntry, []string) {
	e := r.Entry
	var degraded []string
	for _, f := range []string{FieldCoordinates, FieldTemperature, FieldWeather, FieldMessage} {
		if r.Errors[f] == nil {
			continue
		}
		degraded = append(degraded, f)
		switch f {
		case FieldCoordinates:
			e.Latitude, e.Longitude = nil, nil
		case FieldTemperature:
			e.Temperature = nil
		case FieldWeather:
			e.Weather = nil
		case FieldMessage:
			e.Message = truncateRunes(e.Message, domain.MaxMessageRunes)
		}
	}
	return e, degraded
}
