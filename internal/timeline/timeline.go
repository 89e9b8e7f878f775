// Package timeline merges per-speaker transcript segments into one ordered transcript.
package timeline

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const divider = "═══════════════════════════════════════════════════════════════"

// Segment is one speaker-attributed utterance, in seconds from session start.
type Segment struct {
	Start   float64
	End     float64
	Text    string
	Speaker string
}

// Header carries the session metadata rendered above the transcript body.
type Header struct {
	StartedAt time.Time
	// Zone is the label printed next to the time, e.g. the IANA name.
	Zone string
}

// Merge flattens per-speaker tracks, drops blank utterances, and stable-sorts
// by start time. Ties keep their input order. Runs of whitespace inside a
// segment, newlines included, collapse to one space so every segment renders
// on a single line.
func Merge(tracks ...[]Segment) []Segment {
	total := 0
	for _, track := range tracks {
		total += len(track)
	}

	merged := make([]Segment, 0, total)
	for _, track := range tracks {
		for _, segment := range track {
			text := collapse(segment.Text)
			if text == "" {
				continue
			}
			segment.Text = text
			if segment.End < segment.Start {
				segment.End = segment.Start
			}
			if strings.TrimSpace(segment.Speaker) == "" {
				segment.Speaker = "UNKNOWN"
			}
			merged = append(merged, segment)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Start < merged[j].Start
	})
	return merged
}

// Render formats merged segments with the fixed header and footer.
func Render(segments []Segment, header Header) string {
	lines := make([]string, 0, len(segments)+11)
	lines = append(lines,
		divider,
		"MEETING TRANSCRIPT",
		"Date: "+header.StartedAt.Format("2006-01-02"),
		fmt.Sprintf("Time: %s (%s)", header.StartedAt.Format("15:04:05"), zoneLabel(header)),
		fmt.Sprintf("Segments: %d", len(segments)),
		divider,
		"",
	)
	for _, segment := range segments {
		lines = append(lines, FormatLine(segment))
	}
	lines = append(lines,
		"",
		divider,
		"END OF TRANSCRIPT",
		divider,
	)
	return strings.Join(lines, "\n")
}

// FormatLine renders one segment as `[HH:MM:SS] <speaker>: text`.
func FormatLine(segment Segment) string {
	return fmt.Sprintf("[%s] <%s>: %s", FormatTimestamp(segment.Start), segment.Speaker, collapse(segment.Text))
}

func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// FormatTimestamp renders whole seconds as HH:MM:SS; hours may exceed 99.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

var linePattern = regexp.MustCompile(`^\[(\d{2,}):(\d{2}):(\d{2})\] <(.*?)>: (.*)$`)

// Parse reads segment lines back out of a rendered transcript. Header and
// footer lines are skipped. End times are not recoverable and equal Start.
func Parse(rendered string) ([]Segment, error) {
	segments := make([]Segment, 0)
	for i, line := range strings.Split(rendered, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, "[") {
			continue
		}
		match := linePattern.FindStringSubmatch(line)
		if match == nil {
			return nil, fmt.Errorf("line %d: malformed transcript line %q", i+1, line)
		}
		hours, _ := strconv.Atoi(match[1])
		minutes, _ := strconv.Atoi(match[2])
		secs, _ := strconv.Atoi(match[3])
		start := float64(hours*3600 + minutes*60 + secs)
		segments = append(segments, Segment{
			Start:   start,
			End:     start,
			Speaker: match[4],
			Text:    match[5],
		})
	}
	return segments, nil
}

func zoneLabel(header Header) string {
	if header.Zone != "" {
		return header.Zone
	}
	if loc := header.StartedAt.Location(); loc != nil {
		return loc.String()
	}
	return "UTC"
}
