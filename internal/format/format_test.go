package format_test

import (
	"strings"
	"testing"
	"time"

	"trailkit/internal/format"
)

func TestASCII_Table(t *testing.T) {
	tb := format.NewTable(format.ASCII)
	tb.Header("Output", "Destination", "Features")
	tb.Row("CONTOURS_10M", "memory", 12)
	out := tb.String()

	for _, want := range []string{"OUTPUT", "CONTOURS_10M", "12", "───"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestMarkdown_TableWithFooter(t *testing.T) {
	tb := format.NewTable(format.Markdown)
	tb.Header("Table", "Imported")
	tb.Row("10m_contours", format.Mark(true))
	tb.Footer("TOTAL", 1)
	out := tb.String()

	for _, want := range []string{"| Table", "---", "10m_contours", "✓", "TOTAL"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestColumns_RightAlign(t *testing.T) {
	tb := format.NewTable(format.ASCII)
	tb.Header("Stage", "Elapsed")
	tb.Row("slope", "12ms")
	tb.Columns(format.Column{Number: 2, Align: format.AlignRight})
	if !strings.Contains(tb.String(), "12ms") {
		t.Errorf("expected '12ms' in output:\n%s", tb.String())
	}
}

func TestParseMode(t *testing.T) {
	if m, err := format.ParseMode("markdown"); err != nil || m != format.Markdown {
		t.Errorf("ParseMode(markdown) = %v, %v", m, err)
	}
	if m, err := format.ParseMode(""); err != nil || m != format.ASCII {
		t.Errorf("ParseMode(\"\") = %v, %v", m, err)
	}
	if _, err := format.ParseMode("html"); err == nil {
		t.Error("expected error for html")
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{42 * time.Second, "42s"},
		{125 * time.Second, "2m 5s"},
	}
	for _, tt := range tests {
		if got := format.Duration(tt.in); got != tt.want {
			t.Errorf("Duration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := format.Truncate("Black Diamond Polygons", 10); got != "Black D..." {
		t.Errorf("Truncate = %q", got)
	}
	if got := format.Truncate("short", 10); got != "short" {
		t.Errorf("Truncate = %q", got)
	}
}
