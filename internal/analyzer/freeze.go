package analyzer

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Splices closer than this are treated as touching.
const epsilon = 1e-6

var freezeLine = regexp.MustCompile(`lavfi\.freezedetect\.freeze_(start|end):\s*([0-9]+(?:\.[0-9]+)?)`)

// ParseFreezeOutput extracts freezes from freezedetect log output. A freeze
// still open when the log ends lasts until totalDuration.
func ParseFreezeOutput(output string, totalDuration float64) []Freeze {
	var freezes []Freeze
	open := -1.0

	for _, line := range strings.Split(output, "\n") {
		m := freezeLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		switch m[1] {
		case "start":
			if open < 0 {
				open = v
			}
		case "end":
			if open >= 0 {
				freezes = append(freezes, Freeze{Start: open, End: v})
				open = -1
			}
		}
	}
	if open >= 0 && totalDuration > open {
		freezes = append(freezes, Freeze{Start: open, End: totalDuration})
	}
	return freezes
}

// CutRanges keeps the first keep seconds of every freeze longer than keep and
// returns the remainder as sorted, merged ranges to remove.
func CutRanges(freezes []Freeze, keep float64) []Segment {
	var cuts []Segment
	for _, f := range freezes {
		if f.Duration() > keep {
			cuts = append(cuts, Segment{Start: f.Start + keep, End: f.End})
		}
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i].Start < cuts[j].Start })

	var merged []Segment
	for _, c := range cuts {
		if n := len(merged); n > 0 && c.Start <= merged[n-1].End+epsilon {
			if c.End > merged[n-1].End {
				merged[n-1].End = c.End
			}
			continue
		}
		merged = append(merged, c)
	}
	return merged
}

// KeepSegments returns [0, total] minus the cuts, in time order, without
// zero-length segments.
func KeepSegments(cuts []Segment, total float64) []Segment {
	var keep []Segment
	cursor := 0.0
	for _, c := range cuts {
		start := max(c.Start, 0)
		if start-cursor > epsilon {
			keep = append(keep, Segment{Start: cursor, End: min(start, total)})
		}
		cursor = max(cursor, c.End)
		if cursor >= total {
			break
		}
	}
	if total-cursor > epsilon {
		keep = append(keep, Segment{Start: cursor, End: total})
	}
	return keep
}

// SelectExpr is a select filter predicate over t that is true inside any
// segment. Ranges are half-open so a splice never repeats a frame; a segment
// reaching total stays open-ended to keep the final frame.
func SelectExpr(segments []Segment, total float64) string {
	if len(segments) == 0 {
		return "0"
	}
	terms := make([]string, len(segments))
	for i, s := range segments {
		if s.End >= total-epsilon {
			terms[i] = "gte(t," + num(s.Start) + ")"
			continue
		}
		terms[i] = "gte(t," + num(s.Start) + ")*lt(t," + num(s.End) + ")"
	}
	return strings.Join(terms, "+")
}

// SelectFilter selects the segments and rebases timestamps to be contiguous.
func SelectFilter(segments []Segment, total float64) string {
	return "select='" + SelectExpr(segments, total) + "',setpts=N/FRAME_RATE/TB"
}

// RemovedDuration sums the length of the cuts.
func RemovedDuration(cuts []Segment) float64 {
	total := 0.0
	for _, c := range cuts {
		total += c.Duration()
	}
	return total
}

// Excision is the outcome of analysing one video.
type Excision struct {
	Freezes []Freeze
	Cuts    []Segment
	Keep    []Segment
	Removed float64
}

// Plan derives cuts and keep segments for a video of the given length.
func Plan(freezes []Freeze, total, keep float64) Excision {
	cuts := CutRanges(freezes, keep)
	return Excision{
		Freezes: freezes,
		Cuts:    cuts,
		Keep:    KeepSegments(cuts, total),
		Removed: RemovedDuration(cuts),
	}
}

// NeedsCut reports whether a second pass is required.
func (e Excision) NeedsCut() bool { return len(e.Cuts) > 0 }

func num(f float64) string {
	s := strconv.FormatFloat(f, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
