package timeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMergeOrdersAcrossSpeakers(t *testing.T) {
	alice := []Segment{
		{Start: 0, End: 2, Text: "hello", Speaker: "Alice"},
		{Start: 9, End: 10, Text: "bye", Speaker: "Alice"},
	}
	bob := []Segment{
		{Start: 5, End: 6, Text: "hi", Speaker: "Bob"},
	}

	merged := Merge(alice, bob)
	require.Len(t, merged, 3)
	require.Equal(t, []string{"hello", "hi", "bye"}, texts(merged))
	for i := 1; i < len(merged); i++ {
		require.LessOrEqual(t, merged[i-1].Start, merged[i].Start)
	}
}

func TestMergeStableOnTiesAndDropsBlankText(t *testing.T) {
	merged := Merge(
		[]Segment{{Start: 1, Text: "first", Speaker: "A"}, {Start: 2, Text: "   ", Speaker: "A"}},
		[]Segment{{Start: 1, Text: "second", Speaker: "B"}},
	)
	require.Equal(t, []string{"first", "second"}, texts(merged))
}

func TestMergeNormalizesEndAndSpeaker(t *testing.T) {
	merged := Merge([]Segment{{Start: 4, End: 3, Text: " x "}})
	require.Equal(t, Segment{Start: 4, End: 4, Text: "x", Speaker: "UNKNOWN"}, merged[0])
}

func TestRenderLayout(t *testing.T) {
	loc := time.FixedZone("TRT", 3*3600)
	header := Header{StartedAt: time.Date(2026, 3, 4, 14, 5, 6, 0, loc), Zone: "Europe/Istanbul"}
	rendered := Render(Merge([]Segment{{Start: 3725, Text: "hello", Speaker: "Alice"}}), header)

	lines := strings.Split(rendered, "\n")
	require.Equal(t, []string{
		divider,
		"MEETING TRANSCRIPT",
		"Date: 2026-03-04",
		"Time: 14:05:06 (Europe/Istanbul)",
		"Segments: 1",
		divider,
		"",
		"[01:02:05] <Alice>: hello",
		"",
		divider,
		"END OF TRANSCRIPT",
		divider,
	}, lines)
}

func TestFormatTimestamp(t *testing.T) {
	require.Equal(t, "00:00:00", FormatTimestamp(0))
	require.Equal(t, "00:00:59", FormatTimestamp(59.99))
	require.Equal(t, "01:00:00", FormatTimestamp(3600))
	require.Equal(t, "00:00:00", FormatTimestamp(-3))
	require.Equal(t, "100:00:01", FormatTimestamp(360001))
}

func TestMergeIsIdempotentOverParsedOutput(t *testing.T) {
	header := Header{StartedAt: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	first := Render(Merge(
		[]Segment{{Start: 7.4, End: 8, Text: "later", Speaker: "Bob"}},
		[]Segment{{Start: 0.2, End: 1, Text: "sooner <with> brackets: ok", Speaker: "Alice"}},
	), header)

	parsed, err := Parse(first)
	require.NoError(t, err)
	second := Render(Merge(parsed), header)
	require.Equal(t, first, second)
}

func TestMultiLineTextRendersOnOneLineAndParsesBack(t *testing.T) {
	header := Header{StartedAt: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	merged := Merge([]Segment{{Start: 3, Text: "first line\n[laughs]  second\r\n\tthird", Speaker: "Alice"}})
	require.Equal(t, "first line [laughs] second third", merged[0].Text)

	rendered := Render(merged, header)
	require.Contains(t, rendered, "\n[00:00:03] <Alice>: first line [laughs] second third\n")

	parsed, err := Parse(rendered)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	require.Equal(t, rendered, Render(Merge(parsed), header))
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, err := Parse("[00:00] <x>: y")
	require.Error(t, err)
	require.Contains(t, err.Error(), "malformed")
}

func TestEndToEndOffsetsOrderSpeakers(t *testing.T) {
	shift := func(segments []Segment, offset float64, speaker string) []Segment {
		out := make([]Segment, 0, len(segments))
		for _, s := range segments {
			out = append(out, Segment{Start: s.Start + offset, End: s.End + offset, Text: s.Text, Speaker: speaker})
		}
		return out
	}

	b := shift([]Segment{{Start: 0, End: 1, Text: "hi"}}, 5, "B")
	a := shift([]Segment{{Start: 0, End: 2, Text: "hello"}}, 0, "A")

	rendered := Render(Merge(b, a), Header{StartedAt: time.Unix(0, 0).UTC()})
	require.Less(t, strings.Index(rendered, "[00:00:00] <A>: hello"), strings.Index(rendered, "[00:00:05] <B>: hi"))
}

func texts(segments []Segment) []string {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		out = append(out, s.Text)
	}
	return out
}
