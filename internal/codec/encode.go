package codec

import (
	"strconv"
	"strings"

	"github.com/tbourn/go-travel-register/internal/domain"
)

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Encode renders e as its five display fields, the inverse of DecodeTrusted.
// Absent fields render as empty strings and no checksum digit is added.
func Encode(e domain.RegisterEntry) []string {
	out := []string{e.ID, "", "", "", lineBreaks.Replace(e.Message)}
	if e.HasCoordinates() {
		out[1] = formatFloat(*e.Latitude) + ", " + formatFloat(*e.Longitude)
	}
	if e.Temperature != nil {
		out[2] = formatFloat(*e.Temperature)
	}
	if e.Weather != nil {
		out[3] = *e.Weather
	}
	return out
}

// Format renders e as one line: "id # coords # temp # weather # message".
func Format(e domain.RegisterEntry) string {
	return strings.Join(Encode(e), " "+Separator+" ")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
