package terrain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Band is a named terrain-difficulty class: a closed interval over slope
// percentage values.
type Band struct {
	Name  string  `yaml:"name" json:"name"`
	Low   float64 `yaml:"low" json:"low"`
	High  float64 `yaml:"high" json:"high"`
	Table string  `yaml:"table" json:"table"`
	Field string  `yaml:"field" json:"field"`
}

// BlackDiamond is the difficult-terrain band used by the default profile.
var BlackDiamond = Band{
	Name:  "Black Diamond",
	Low:   15,
	High:  30,
	Table: "Black Diamond Polygons",
	Field: "DN",
}

// Validate checks the interval invariant low <= high.
func (b Band) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("band: name is required")
	}
	if math.IsNaN(b.Low) || math.IsNaN(b.High) {
		return fmt.Errorf("band %q: bounds must be numbers", b.Name)
	}
	if b.Low > b.High {
		return fmt.Errorf("band %q: low %v exceeds high %v", b.Name, b.Low, b.High)
	}
	return nil
}

// Contains reports whether v lies in [Low, High].
func (b Band) Contains(v float64) bool {
	return v >= b.Low && v <= b.High
}

// Formula renders the raster-calculator expression that keeps in-band
// values and zeroes the rest.
func (b Band) Formula() string {
	return fmt.Sprintf("A*logical_and(A>=%s,A<=%s)", formatNumber(b.Low), formatNumber(b.High))
}

// Key returns the result-mapping key for the band, e.g. BLACK_DIAMOND.
func (b Band) Key() Key {
	var sb strings.Builder
	underscore := false
	for _, r := range strings.TrimSpace(b.Name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToUpper(r))
			underscore = false
			continue
		}
		if !underscore && sb.Len() > 0 {
			sb.WriteByte('_')
			underscore = true
		}
	}
	return Key(strings.TrimSuffix(sb.String(), "_"))
}

// AttributeField returns the polygon attribute name, defaulting to DN.
func (b Band) AttributeField() string {
	if b.Field == "" {
		return "DN"
	}
	return b.Field
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
