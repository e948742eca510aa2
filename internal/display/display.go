// Package display provides human-readable names for output keys and stage
// names.
//
// Rule: code is for machines, words are for humans.
// Use these functions in CLI output and logs meant for people.
// Keep raw codes for JSON fields, map keys, and equality comparisons.
package display

import (
	"strings"
	"unicode"

	"trailkit/internal/terrain"
)

// --- Outputs ---

var outputs = map[terrain.Key]string{
	terrain.KeyHillshade:  "Hillshade",
	terrain.KeyAspect:     "Aspect",
	terrain.KeyRelief:     "Colour Relief",
	terrain.KeyRuggedness: "Ruggedness",
	terrain.KeySlope:      "Slope",
}

// Output returns the human-readable name for an output key.
// "CONTOURS_10M" -> "10 m Contours", "BLACK_DIAMOND" -> "Black Diamond".
func Output(k terrain.Key) string {
	if name, ok := outputs[k]; ok {
		return name
	}
	s := string(k)
	if rest, ok := strings.CutPrefix(s, "CONTOURS_"); ok && strings.HasSuffix(rest, "M") {
		return strings.TrimSuffix(rest, "M") + " m Contours"
	}
	return titleWords(s, "_")
}

// OutputWithKey returns "10 m Contours (CONTOURS_10M)" format.
func OutputWithKey(k terrain.Key) string {
	return Output(k) + " (" + string(k) + ")"
}

// --- Stages ---

var uploads = map[string]string{
	"sink-import/contours":       "Upload Contours",
	"sink-import/classification": "Upload Slope Polygons",
}

// Stage returns the human-readable name for a stage name.
// "contour-5m" -> "5 m Contours", "classification-polygon/black_diamond" ->
// "Black Diamond Polygons".
func Stage(name string) string {
	if s, ok := uploads[name]; ok {
		return s
	}
	if rest, ok := strings.CutPrefix(name, string(terrain.KindClassPolygons)+"/"); ok {
		return titleWords(rest, "_") + " Polygons"
	}
	if rest, ok := strings.CutPrefix(name, "contour-"); ok && strings.HasSuffix(rest, "m") {
		return strings.TrimSuffix(rest, "m") + " m Contours"
	}
	if k := terrain.Key(strings.ToUpper(name)); outputs[k] != "" {
		return outputs[k]
	}
	return name
}

// StagePath converts stage names to a human-readable path.
// ["contour-10m", "slope"] -> "10 m Contours → Slope"
func StagePath(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = Stage(n)
	}
	return strings.Join(out, " → ")
}

// --- Destinations ---

// Destination describes where a product went: the file path, or a word for
// products that were not persisted.
func Destination(d terrain.Destination) string {
	switch d.Mode {
	case terrain.File:
		return d.Path
	case terrain.Skip:
		return "discarded"
	case terrain.Memory:
		return "in memory"
	default:
		return "temporary"
	}
}

func titleWords(s, sep string) string {
	words := strings.Split(strings.ToLower(s), sep)
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
