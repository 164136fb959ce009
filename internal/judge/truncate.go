package judge

import "strings"

// Truncate cuts s to at most limit runes, breaking at the last word boundary
// before the cap and appending an ellipsis. Short inputs pass through
// unchanged.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	cut := string(runes[:limit])
	if idx := strings.LastIndexAny(cut, " \n\t"); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " \n\t") + "…"
}
