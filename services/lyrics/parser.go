package lyrics

import (
	"regexp"
	"strconv"
	"strings"
)

// [mm:ss.cc] followed by optional whitespace and the line text
var lrcLineRegex = regexp.MustCompile(`^\[(\d{2}):(\d{2})\.(\d{2})\]\s*(.*)`)

// ParseSynced parses LRC text. Lines without a leading [mm:ss.cc] tag and
// lines with blank text are dropped; indices count accepted lines only.
func ParseSynced(lrc string) []ParsedLine {
	lines := []ParsedLine{}

	for _, raw := range strings.Split(strings.TrimSpace(lrc), "\n") {
		m := lrcLineRegex.FindStringSubmatch(raw)
		if m == nil {
			continue
		}

		text := strings.TrimSpace(m[4])
		if text == "" {
			continue
		}

		// \d{2} always fits in an int
		minutes, _ := strconv.Atoi(m[1])
		seconds, _ := strconv.Atoi(m[2])
		centis, _ := strconv.Atoi(m[3])

		lines = append(lines, ParsedLine{
			Index:     len(lines),
			Text:      text,
			Timestamp: float64(minutes*60+seconds) + float64(centis)/100,
		})
	}

	return lines
}

// ParsePlain splits text into trimmed, non-blank lines with zero timestamps.
func ParsePlain(text string) []ParsedLine {
	lines := []ParsedLine{}

	for _, raw := range strings.Split(strings.TrimSpace(text), "\n") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		lines = append(lines, ParsedLine{Index: len(lines), Text: trimmed})
	}

	return lines
}
