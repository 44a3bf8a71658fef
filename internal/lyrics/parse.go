package lyrics

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/desertthunder/lyrx/internal/models"
)

var lrcLine = regexp.MustCompile(`\[(\d{2}):(\d{2})\.(\d{2,3})\](.*)`)

var metadataPrefixes = []string{"[ar:", "[ti:", "[al:", "[by:", "[offset:", "[length:", "[tool:", "[ve:", "[re:"}

// IsMetadataLine reports whether text is an LRC tag line or otherwise fully bracketed.
func IsMetadataLine(text string) bool {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)
	for _, p := range metadataPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]")
}

// ParseLRC extracts time-coded lines from LRC text. Two-digit fractions are centiseconds and are scaled to
// milliseconds. Empty and metadata lines are dropped.
func ParseLRC(content string) []models.LyricLine {
	var entries []models.TimedText
	for _, raw := range strings.Split(content, "\n") {
		m := lrcLine.FindStringSubmatch(strings.TrimRight(raw, "\r"))
		if m == nil {
			continue
		}

		minutes, _ := strconv.ParseInt(m[1], 10, 64)
		seconds, _ := strconv.ParseInt(m[2], 10, 64)
		frac, _ := strconv.ParseInt(m[3], 10, 64)
		if len(m[3]) == 2 {
			frac *= 10
		}

		text := strings.TrimSpace(m[4])
		if text == "" || IsMetadataLine(text) {
			continue
		}

		entries = append(entries, models.TimedText{At: minutes*60_000 + seconds*1000 + frac, Text: text})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].At < entries[j].At })
	return models.BuildLines(entries)
}

// PlainToLines turns untimed text into back-to-back lines of [models.PlainLineMS] each.
func PlainToLines(content string) []models.LyricLine {
	var lines []models.LyricLine
	var at int64
	for _, raw := range strings.Split(content, "\n") {
		text := strings.TrimSpace(raw)
		if text == "" || IsMetadataLine(text) {
			continue
		}
		lines = append(lines, models.LyricLine{Start: at, End: at + models.PlainLineMS, Text: text})
		at += models.PlainLineMS
	}
	return lines
}
