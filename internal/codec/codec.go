// Package codec decodes and encodes the compact positional text format of a
// travel register entry:
//
//	DATE # COORDS # TEMP # WEATHER+CHECKSUM # MESSAGE
//
// Fields are separated by a literal '#' and trimmed before parsing. DATE is
// MMDDhhmm (implicit current year, zero seconds). The last character of the
// weather field is a checksum digit: the sum of the DATE digits modulo 10.
//
// The message is stored as sent. A message longer than MaxMessageRunes is cut
// on a character boundary and reported as degraded.
//
// Decoding never stops at the first problem. It returns a Result carrying the
// best-effort entry and one error per failed field, so the caller applies its
// own degrade-or-reject policy. Only the id and the checksum are fatal.
//
// Known limitation: the year is taken from the clock, so an entry dated late
// December and received in January decodes into the new year.
package codec

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/juju/clock"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-travel-register/internal/domain"
)

const (
	// Separator splits the positional fields.
	Separator = "#"
	// FieldCount is the number of positional fields of one entry.
	FieldCount = 5

	compactDateLayout = "200601021504"
)

// Field names, used as keys of Result.Errors.
const (
	FieldID          = "id"
	FieldCoordinates = "geoCoords"
	FieldTemperature = "temperature"
	FieldWeather     = "weather"
	FieldMessage     = "message"
	FieldChecksum    = "checksum"
)

// Decoding errors.
var (
	ErrFieldCount         = errors.New("entry must have exactly 5 '#'-separated fields")
	ErrInvalidDate        = errors.New("invalid date")
	ErrChecksum           = errors.New("checksum mismatch")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrInvalidTemperature = errors.New("invalid temperature")
	ErrInvalidWeather     = errors.New("invalid weather code")
	ErrMessageTooLong     = errors.New("message too long")
)

// Trusted input may use the display layout produced by Encode.
var displayLayouts = []string{
	domain.EntryIDLayout,
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

var weatherRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,16}$`)

// Temperature readings outside this range are treated as garbled.
const (
	minTemperature = -100
	maxTemperature = 100
)

// Split cuts a raw body on '#' and trims every part. It fails with
// ErrFieldCount unless there are exactly FieldCount parts.
func Split(body string) ([]string, error) {
	parts := strings.Split(body, Separator)
	if len(parts) != FieldCount {
		return nil, ErrFieldCount
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

// Checksum returns the sum of the decimal digits of date modulo 10.
func Checksum(date string) int {
	sum := 0
	for i := 0; i < len(date); i++ {
		if c := date[i]; c >= '0' && c <= '9' {
			sum += int(c - '0')
		}
	}
	return sum % 10
}

// Codec decodes entries relative to a clock (for the implicit year) and the
// register time zone. It holds no other state and is safe for concurrent use.
type Codec struct {
	clock clock.Clock
	loc   *time.Location
}

// New returns a Codec. A nil clock means the wall clock; a nil location means UTC.
func New(clk clock.Clock, loc *time.Location) *Codec {
	if clk == nil {
		clk = clock.WallClock
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Codec{clock: clk, loc: loc}
}

// Location returns the register time zone.
func (c *Codec) Location() *time.Location { return c.loc }

// Decode decodes the five trimmed fields of an SMS entry, verifying the
// checksum carried by the weather field and stripping it before the weather
// code is decoded.
func (c *Codec) Decode(fields []string) Result {
	r := newResult()
	if len(fields) != FieldCount {
		r.fail(FieldID, ErrFieldCount)
		return r
	}

	date := fields[0]
	if id, err := c.compactID(date); err != nil {
		r.fail(FieldID, err)
	} else {
		r.Entry.ID = id
	}

	weather := fields[3]
	if !checksumMatches(date, weather) {
		r.fail(FieldChecksum, fmt.Errorf("%w: want %d", ErrChecksum, Checksum(date)))
	}
	if weather != "" {
		_, size := utf8.DecodeLastRuneInString(weather)
		weather = strings.TrimSpace(weather[:len(weather)-size])
	}

	c.decodeOptional(&r, fields[1], fields[2], weather, fields[4])
	return r
}

// DecodeTrusted decodes the five trimmed fields of a batch entry. The date may
// use the display layout or MMDDhhmm, and there is no checksum.
func (c *Codec) DecodeTrusted(fields []string) Result {
	r := newResult()
	if len(fields) != FieldCount {
		r.fail(FieldID, ErrFieldCount)
		return r
	}

	if id, err := c.trustedID(fields[0]); err != nil {
		r.fail(FieldID, err)
	} else {
		r.Entry.ID = id
	}

	c.decodeOptional(&r, fields[1], fields[2], fields[3], fields[4])
	return r
}

func (c *Codec) decodeOptional(r *Result, coords, temp, weather, message string) {
	if lat, lng, err := parseCoordinates(coords); err != nil {
		r.fail(FieldCoordinates, err)
	} else {
		r.Entry.Latitude, r.Entry.Longitude = lat, lng
	}

	if t, err := parseTemperature(temp); err != nil {
		r.fail(FieldTemperature, err)
	} else {
		r.Entry.Temperature = t
	}

	if w, err := parseWeather(weather); err != nil {
		r.fail(FieldWeather, err)
	} else {
		r.Entry.Weather = w
	}

	msg, truncated := clipMessage(message)
	r.Entry.Message = msg
	if truncated {
		r.fail(FieldMessage, fmt.Errorf("%w: max %d characters", ErrMessageTooLong, domain.MaxMessageRunes))
	}
}

func (c *Codec) compactID(s string) (string, error) {
	if len(s) != 8 || !allDigits(s) {
		return "", fmt.Errorf("%w: %q is not MMDDhhmm", ErrInvalidDate, s)
	}
	year := c.clock.Now().In(c.loc).Year()
	t, err := time.ParseInLocation(compactDateLayout, fmt.Sprintf("%04d%s", year, s), c.loc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	return domain.EntryID(t), nil
}

func (c *Codec) trustedID(s string) (string, error) {
	if len(s) == 8 && allDigits(s) {
		return c.compactID(s)
	}
	for _, layout := range displayLayouts {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return domain.EntryID(t), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func checksumMatches(date, weather string) bool {
	if weather == "" {
		return false
	}
	last := weather[len(weather)-1]
	if last < '0' || last > '9' {
		return false
	}
	return int(last-'0') == Checksum(date)
}

func parseCoordinates(s string) (lat, lng *float64, err error) {
	if s == "" {
		return nil, nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("%w: want \"lat, lng\"", ErrInvalidCoordinates)
	}
	la, err1 := parseFinite(parts[0])
	lo, err2 := parseFinite(parts[1])
	if err1 != nil || err2 != nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidCoordinates, s)
	}
	if la < -90 || la > 90 || lo < -180 || lo > 180 {
		return nil, nil, fmt.Errorf("%w: out of range", ErrInvalidCoordinates)
	}
	return &la, &lo, nil
}

func parseTemperature(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := parseFinite(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTemperature, s)
	}
	if v < minTemperature || v > maxTemperature {
		return nil, fmt.Errorf("%w: %v out of range", ErrInvalidTemperature, v)
	}
	return &v, nil
}

func parseWeather(s string) (*string, error) {
	if s == "" {
		return nil, nil
	}
	if !weatherRE.MatchString(s) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWeather, s)
	}
	return &s, nil
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}

// clipMessage returns s unchanged when it fits MaxMessageRunes. Otherwise it
// cuts s to at most MaxMessageRunes, backing off to the previous character
// boundary so a base letter is never kept without its combining marks.
func clipMessage(s string) (string, bool) {
	if utf8.RuneCountInString(s) <= domain.MaxMessageRunes {
		return s, false
	}
	head := truncateRunes(s, domain.MaxMessageRunes)
	if norm.NFC.FirstBoundaryInString(s[len(head):]) != 0 {
		if cut := norm.NFC.LastBoundary([]byte(head)); cut > 0 {
			head = head[:cut]
		}
	}
	return head, true
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
