package overlay

import (
	"fmt"
	"strings"
)

// formatClock renders milliseconds as m:ss or h:mm:ss.
func formatClock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	s := ms / 1000
	h, m := s/3600, (s%3600)/60
	s %= 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatFE(v float64) string {
	return fmt.Sprintf("%.2f FE", v)
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if n <= 0 || len(r) <= n {
		return string(r)
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
