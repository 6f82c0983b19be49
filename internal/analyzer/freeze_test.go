package analyzer

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strconv"
	"strings"
	"testing"
)

const sampleLog = `Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'annotated.mp4':
[freezedetect @ 0x600001c8c000] lavfi.freezedetect.freeze_start: 2
[freezedetect @ 0x600001c8c000] lavfi.freezedetect.freeze_duration: 3
[freezedetect @ 0x600001c8c000] lavfi.freezedetect.freeze_end: 5
frame=  300 fps=0.0 q=-0.0 Lsize=N/A time=00:00:10.00 bitrate=N/A speed= 40x
`

func TestParseFreezeOutput(t *testing.T) {
	got := ParseFreezeOutput(sampleLog, 10)
	want := []Freeze{{Start: 2, End: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseFreezeOutput() = %v, want %v", got, want)
	}
}

func TestParseFreezeOutputUnterminated(t *testing.T) {
	log := "lavfi.freezedetect.freeze_start: 1.5\n" +
		"lavfi.freezedetect.freeze_end: 3.25\n" +
		"lavfi.freezedetect.freeze_start: 7.04\n"
	got := ParseFreezeOutput(log, 9.5)
	want := []Freeze{{Start: 1.5, End: 3.25}, {Start: 7.04, End: 9.5}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseFreezeOutputIgnoresNoise(t *testing.T) {
	if got := ParseFreezeOutput("frame=10\nlavfi.freezedetect.freeze_end: 4\n", 10); len(got) != 0 {
		t.Errorf("stray end produced %v", got)
	}
}

func TestFreezeExcision(t *testing.T) {
	// One freeze from 2s to 5s in a 10s clip.
	ex := Plan([]Freeze{{Start: 2, End: 5}}, 10, 1.5)

	wantCuts := []Segment{{Start: 3.5, End: 5}}
	if !reflect.DeepEqual(ex.Cuts, wantCuts) {
		t.Errorf("cuts = %v, want %v", ex.Cuts, wantCuts)
	}
	wantKeep := []Segment{{Start: 0, End: 3.5}, {Start: 5, End: 10}}
	if !reflect.DeepEqual(ex.Keep, wantKeep) {
		t.Errorf("keep = %v, want %v", ex.Keep, wantKeep)
	}
	if math.Abs(ex.Removed-1.5) > 1e-9 {
		t.Errorf("removed = %f, want 1.5", ex.Removed)
	}
	if !ex.NeedsCut() {
		t.Error("expected a second pass")
	}
	if got, want := SelectExpr(ex.Keep, 10), "gte(t,0)*lt(t,3.5)+gte(t,5)"; got != want {
		t.Errorf("SelectExpr = %q, want %q", got, want)
	}
}

func TestCutRanges(t *testing.T) {
	tests := []struct {
		name    string
		freezes []Freeze
		want    []Segment
	}{
		{"none", nil, nil},
		{"short freeze kept whole", []Freeze{{Start: 1, End: 2.4}}, nil},
		{"exactly keep length", []Freeze{{Start: 1, End: 2.5}}, nil},
		{
			"unsorted input",
			[]Freeze{{Start: 10, End: 14}, {Start: 1, End: 4}},
			[]Segment{{Start: 2.5, End: 4}, {Start: 11.5, End: 14}},
		},
		{
			"overlapping merged",
			[]Freeze{{Start: 1, End: 6}, {Start: 2, End: 8}},
			[]Segment{{Start: 2.5, End: 8}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CutRanges(tt.freezes, 1.5); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CutRanges() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeepSegments(t *testing.T) {
	tests := []struct {
		name string
		cuts []Segment
		want []Segment
	}{
		{"no cuts", nil, []Segment{{Start: 0, End: 10}}},
		{"cut at start", []Segment{{Start: 0, End: 2}}, []Segment{{Start: 2, End: 10}}},
		{"cut to end", []Segment{{Start: 6, End: 10}}, []Segment{{Start: 0, End: 6}}},
		{"cut past end", []Segment{{Start: 6, End: 12}}, []Segment{{Start: 0, End: 6}}},
		{
			"two cuts",
			[]Segment{{Start: 1, End: 2}, {Start: 4, End: 5}},
			[]Segment{{Start: 0, End: 1}, {Start: 2, End: 4}, {Start: 5, End: 10}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KeepSegments(tt.cuts, 10)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("KeepSegments() = %v, want %v", got, tt.want)
			}
			for i := 1; i < len(got); i++ {
				if got[i].Start < got[i-1].End {
					t.Errorf("segments overlap: %v", got)
				}
			}
			t.Logf("kept %d segments", len(got))
		})
	}
}

func TestSelectFilter(t *testing.T) {
	got := SelectFilter([]Segment{{Start: 0, End: 1.25}, {Start: 2, End: 3}}, 3)
	want := "select='gte(t,0)*lt(t,1.25)+gte(t,2)',setpts=N/FRAME_RATE/TB"
	if got != want {
		t.Errorf("SelectFilter() = %q, want %q", got, want)
	}
	if SelectExpr(nil, 10) != "0" {
		t.Error("empty selection must select nothing")
	}
}

// selects evaluates a predicate built by SelectExpr at time t.
func selects(t *testing.T, expr string, at float64) bool {
	t.Helper()
	if expr == "0" {
		return false
	}
	for _, term := range strings.Split(expr, "+") {
		in := true
		for _, cond := range strings.Split(term, "*") {
			op, arg, ok := strings.Cut(strings.TrimSuffix(cond, ")"), "(t,")
			if !ok {
				t.Fatalf("unexpected condition %q in %q", cond, expr)
			}
			v, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				t.Fatalf("bad bound in %q: %v", cond, err)
			}
			switch op {
			case "gte":
				in = in && at >= v
			case "lt":
				in = in && at < v
			default:
				t.Fatalf("unexpected operator %q", op)
			}
		}
		if in {
			return true
		}
	}
	return false
}

func TestSelectExprExcludesCuts(t *testing.T) {
	tests := []struct {
		name    string
		freezes []Freeze
		want    string
	}{
		{"mid clip", []Freeze{{Start: 2, End: 5}}, "gte(t,0)*lt(t,3.5)+gte(t,5)"},
		{"trailing", []Freeze{{Start: 6, End: 10}}, "gte(t,0)*lt(t,7.5)"},
		{"unterminated", ParseFreezeOutput("lavfi.freezedetect.freeze_start: 6\n", 10), "gte(t,0)*lt(t,7.5)"},
		{"from zero", []Freeze{{Start: 0, End: 4}}, "gte(t,0)*lt(t,1.5)+gte(t,4)"},
		{
			"back to back",
			[]Freeze{{Start: 1, End: 4}, {Start: 4, End: 8}},
			"gte(t,0)*lt(t,2.5)+gte(t,4)*lt(t,5.5)+gte(t,8)",
		},
		{"whole clip", []Freeze{{Start: 0, End: 10}}, "gte(t,0)*lt(t,1.5)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := Plan(tt.freezes, 10, 1.5)
			expr := SelectExpr(ex.Keep, 10)
			if expr != tt.want {
				t.Errorf("SelectExpr() = %q, want %q", expr, tt.want)
			}
			for _, c := range ex.Cuts {
				for _, at := range []float64{c.Start, (c.Start + c.End) / 2, c.End - 0.01} {
					if selects(t, expr, at) {
						t.Errorf("%q keeps t=%.2f inside cut %v", expr, at, c)
					}
				}
			}
			for _, k := range ex.Keep {
				for _, at := range []float64{k.Start, (k.Start + k.End) / 2} {
					if !selects(t, expr, at) {
						t.Errorf("%q drops t=%.2f inside kept %v", expr, at, k)
					}
				}
			}
			if last := ex.Keep[len(ex.Keep)-1]; last.End >= 10 && !selects(t, expr, 10) {
				t.Errorf("%q drops the final frame", expr)
			}
		})
	}
}

func TestOptionsFilter(t *testing.T) {
	if got := DefaultOptions().Filter(); got != "freezedetect=n=0.003:d=1.5" {
		t.Errorf("Filter() = %q", got)
	}
}

type fakeProber struct {
	out    string
	err    error
	filter string
}

func (f *fakeProber) FreezeProbe(_ context.Context, _ string, filter string) (string, error) {
	f.filter = filter
	return f.out, f.err
}

func TestFreezeDetector(t *testing.T) {
	p := &fakeProber{out: sampleLog}
	d, err := NewDetector("freezedetect", p, DefaultOptions())
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	freezes, err := d.Detect(context.Background(), "in.mp4", 10)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(freezes) != 1 || p.filter != "freezedetect=n=0.003:d=1.5" {
		t.Errorf("freezes=%v filter=%q", freezes, p.filter)
	}

	p.err = errors.New("boom")
	if _, err := d.Detect(context.Background(), "in.mp4", 10); err == nil {
		t.Error("expected probe error")
	}
}

func TestDetectorRegistry(t *testing.T) {
	tests := []struct {
		variant string
		wantErr bool
	}{
		{"freezedetect", false},
		{"", false}, // default
		{"none", false},
		{"scdet", true},
		{"invalid", true},
	}

	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			_, err := NewDetector(tt.variant, &fakeProber{}, DefaultOptions())
			if (err != nil) != tt.wantErr {
				t.Errorf("NewDetector(%q) error = %v, wantErr %v", tt.variant, err, tt.wantErr)
			}
		})
	}
}
