package format

import (
	"fmt"
	"time"
)

// Duration formats d as "Xm Ys", "Ys" or "Nms" for sub-second spans.
func Duration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	s := int(d.Seconds())
	if s >= 60 {
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	}
	return fmt.Sprintf("%ds", s)
}

// Truncate shortens s to maxLen bytes, ending in "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// Mark returns "✓" for true and "✗" for false.
func Mark(v bool) string {
	if v {
		return "✓"
	}
	return "✗"
}
