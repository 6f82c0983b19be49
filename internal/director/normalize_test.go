package director

import (
	"reflect"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestNormalizeEmptyYieldsOverview(t *testing.T) {
	got := Normalize(nil, 1920, 1080, 10000)
	want := []Section{{Task: "Overview", Path: "/", StartMs: 250, EndMs: 1800, X: 960, Y: 540}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize(nil) = %+v, want %+v", got, want)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	raw := []AnnotationSection{
		{},
		{Description: ptr("Open settings"), RoutePath: ptr("/settings")},
	}
	got := Normalize(raw, 1280, 720, 60000)

	want := []Section{
		{Task: "Section 1", Path: "/", StartMs: 0, EndMs: 1300, X: 640, Y: 360},
		{Task: "Open settings", Path: "/settings", StartMs: 1200, EndMs: 2500, X: 640, Y: 360},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func TestNormalizeFieldPrecedence(t *testing.T) {
	raw := []AnnotationSection{{
		Task:        ptr("Create project"),
		Description: ptr("ignored"),
		Path:        ptr("/projects"),
		RoutePath:   ptr("/ignored"),
		StartMs:     ptr(4000),
		TimestampMs: ptr(9000),
		X:           ptr(100),
		XNorm:       ptr(0.9),
		YNorm:       ptr(0.25),
	}}
	got := Normalize(raw, 1920, 1080, 20000)[0]

	if got.Task != "Create project" || got.Path != "/projects" {
		t.Errorf("text fields: %+v", got)
	}
	if got.StartMs != 4000 || got.EndMs != 5300 {
		t.Errorf("timing: start=%d end=%d", got.StartMs, got.EndMs)
	}
	if got.X != 100 {
		t.Errorf("pixel x should win over normalized: %d", got.X)
	}
	if got.Y != 270 {
		t.Errorf("normalized y: got %d, want 270", got.Y)
	}
}

func TestNormalizeClamping(t *testing.T) {
	tests := []struct {
		name      string
		raw       AnnotationSection
		duration  int
		wantStart int
		wantEnd   int
		wantX     int
		wantY     int
	}{
		{
			name:      "negative start",
			raw:       AnnotationSection{StartMs: ptr(-500), EndMs: ptr(1000)},
			duration:  10000,
			wantStart: 0, wantEnd: 1000, wantX: 960, wantY: 540,
		},
		{
			name:      "too short span is widened",
			raw:       AnnotationSection{StartMs: ptr(2000), EndMs: ptr(2100)},
			duration:  10000,
			wantStart: 2000, wantEnd: 2350, wantX: 960, wantY: 540,
		},
		{
			name:      "start past duration",
			raw:       AnnotationSection{StartMs: ptr(15000)},
			duration:  10000,
			wantStart: 9650, wantEnd: 10000, wantX: 960, wantY: 540,
		},
		{
			name:      "duration shorter than minimum span",
			raw:       AnnotationSection{StartMs: ptr(100)},
			duration:  200,
			wantStart: 0, wantEnd: 200, wantX: 960, wantY: 540,
		},
		{
			name:      "coordinates outside frame",
			raw:       AnnotationSection{X: ptr(-40), Y: ptr(5000)},
			duration:  10000,
			wantStart: 0, wantEnd: 1300, wantX: 0, wantY: 1080,
		},
		{
			name:      "normalized beyond one",
			raw:       AnnotationSection{XNorm: ptr(1.5), YNorm: ptr(-0.2)},
			duration:  10000,
			wantStart: 0, wantEnd: 1300, wantX: 1920, wantY: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize([]AnnotationSection{tt.raw}, 1920, 1080, tt.duration)[0]
			if got.StartMs != tt.wantStart || got.EndMs != tt.wantEnd {
				t.Errorf("span = [%d, %d], want [%d, %d]", got.StartMs, got.EndMs, tt.wantStart, tt.wantEnd)
			}
			if got.X != tt.wantX || got.Y != tt.wantY {
				t.Errorf("position = (%d, %d), want (%d, %d)", got.X, got.Y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestNormalizeInvariants(t *testing.T) {
	starts := []int{-3000, 0, 150, 999, 4000, 9990, 12000}
	ends := []int{-1, 0, 200, 4100, 9000, 20000}

	for _, duration := range []int{0, 300, 5000, 10000} {
		for _, s := range starts {
			for _, e := range ends {
				raw := []AnnotationSection{{StartMs: ptr(s), EndMs: ptr(e)}}
				got := Normalize(raw, 800, 600, duration)[0]

				if got.StartMs < 0 || got.EndMs > duration || got.StartMs > got.EndMs {
					t.Fatalf("duration=%d raw=[%d,%d]: got [%d,%d]", duration, s, e, got.StartMs, got.EndMs)
				}
				if duration >= MinSectionMs && got.EndMs-got.StartMs < MinSectionMs {
					t.Fatalf("duration=%d raw=[%d,%d]: span %d below minimum", duration, s, e, got.EndMs-got.StartMs)
				}
			}
		}
	}
}

func TestNormalizeSortsStably(t *testing.T) {
	raw := []AnnotationSection{
		{Task: ptr("c"), StartMs: ptr(3000)},
		{Task: ptr("a"), StartMs: ptr(1000)},
		{Task: ptr("b1"), StartMs: ptr(2000)},
		{Task: ptr("b2"), StartMs: ptr(2000)},
	}
	got := Normalize(raw, 100, 100, 10000)

	var order []string
	for _, s := range got {
		order = append(order, s.Task)
	}
	want := []string{"a", "b1", "b2", "c"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}

	again := Normalize(raw, 100, 100, 10000)
	if !reflect.DeepEqual(got, again) {
		t.Error("Normalize is not deterministic")
	}
}

func TestEvents(t *testing.T) {
	sections := []Section{
		{Task: "Open", Path: "/", StartMs: 1000, EndMs: 1200, X: 10, Y: 20},
		{Task: "Save", Path: "/doc", StartMs: 3000, EndMs: 5000, X: 30, Y: 40},
	}
	got := Events(sections)

	want := []InteractionEvent{
		{Kind: Click, AtMs: 1000, X: 10, Y: 20, Note: "Open (/)"},
		{Kind: Hover, AtMs: 1200, X: 10, Y: 20, Note: "Open (/)"},
		{Kind: Click, AtMs: 3000, X: 30, Y: 40, Note: "Save (/doc)"},
		{Kind: Hover, AtMs: 3420, X: 30, Y: 40, Note: "Save (/doc)"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Events() =\n%+v\nwant\n%+v", got, want)
	}
}
