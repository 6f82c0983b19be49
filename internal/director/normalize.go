package director

import (
	"fmt"
	"math"
	"sort"
)

const (
	// MinSectionMs is the shortest span a canonical section may cover.
	MinSectionMs = 350
	// DefaultSectionMs is used when a section has no explicit end.
	DefaultSectionMs = 1300
	// SectionSpacingMs spaces sections that carry no timing at all.
	SectionSpacingMs = 1200
	// HoverOffsetMs places the hover event after the click.
	HoverOffsetMs = 420

	overviewStartMs = 250
	overviewEndMs   = 1800
)

// Normalize turns raw annotation sections into canonical, time-sorted
// sections bounded by the frame and the source duration. It never fails:
// missing or malformed fields fall back to defaults.
func Normalize(raw []AnnotationSection, width, height, durationMs int) []Section {
	if durationMs < 0 {
		durationMs = 0
	}

	sections := make([]Section, 0, len(raw))
	for i, r := range raw {
		start := i * SectionSpacingMs
		if r.StartMs != nil {
			start = *r.StartMs
		} else if r.TimestampMs != nil {
			start = *r.TimestampMs
		}

		end := start + DefaultSectionMs
		if r.EndMs != nil {
			end = *r.EndMs
		}

		start, end = clampSpan(start, end, durationMs)

		sections = append(sections, Section{
			Task:    firstNonEmpty(fmt.Sprintf("Section %d", i+1), r.Task, r.Description),
			Path:    firstNonEmpty("/", r.Path, r.RoutePath),
			StartMs: start,
			EndMs:   end,
			X:       resolveCoord(r.X, r.XNorm, width),
			Y:       resolveCoord(r.Y, r.YNorm, height),
		})
	}

	if len(sections) == 0 {
		return []Section{overview(width, height, durationMs)}
	}

	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].StartMs < sections[j].StartMs
	})
	return sections
}

// Events expands every section into a click at its start and a hover shortly after.
func Events(sections []Section) []InteractionEvent {
	events := make([]InteractionEvent, 0, len(sections)*2)
	for _, s := range sections {
		note := s.Label()
		events = append(events,
			InteractionEvent{Kind: Click, AtMs: s.StartMs, X: s.X, Y: s.Y, Note: note},
			InteractionEvent{Kind: Hover, AtMs: min(s.EndMs, s.StartMs+HoverOffsetMs), X: s.X, Y: s.Y, Note: note},
		)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].AtMs < events[j].AtMs
	})
	return events
}

func overview(width, height, durationMs int) Section {
	start, end := clampSpan(overviewStartMs, overviewEndMs, durationMs)
	return Section{
		Task:    "Overview",
		Path:    "/",
		StartMs: start,
		EndMs:   end,
		X:       width / 2,
		Y:       height / 2,
	}
}

// clampSpan enforces start >= 0, end <= duration and end-start >= MinSectionMs
// whenever the duration is long enough to allow it.
func clampSpan(start, end, durationMs int) (int, int) {
	if start < 0 {
		start = 0
	}
	if start > durationMs-MinSectionMs {
		start = max(0, durationMs-MinSectionMs)
	}
	if end < start+MinSectionMs {
		end = start + MinSectionMs
	}
	if end > durationMs {
		end = durationMs
	}
	return start, end
}

func resolveCoord(px *int, norm *float64, length int) int {
	v := length / 2
	switch {
	case px != nil:
		v = *px
	case norm != nil && !math.IsNaN(*norm) && !math.IsInf(*norm, 0):
		v = int(math.Round(*norm * float64(length)))
	}
	return max(0, min(length, v))
}

func firstNonEmpty(fallback string, candidates ...*string) string {
	for _, c := range candidates {
		if c != nil && *c != "" {
			return *c
		}
	}
	return fallback
}
