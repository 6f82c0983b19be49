package model

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestOperationWireFormat(t *testing.T) {
	scale := 1.8
	ops := []Operation{
		{Type: OpCrop, Crop: &Crop{X: 0, Y: 20, Width: 800, Height: 600}},
		{Type: OpSplit, Split: &Split{AtMs: 1500, RemoveSegment: "after"}},
		{Type: OpStylePreset, StylePreset: &StylePreset{Preset: "dramatic", Overrides: &StyleOverrides{ZoomScale: &scale}}},
	}

	data, err := json.Marshal(ops)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	text := string(data)
	for _, want := range []string{`"type":"crop"`, `"x":0`, `"removeSegment":"after"`, `"overrides":{"zoomScale":1.8}`} {
		if !strings.Contains(text, want) {
			t.Errorf("wire format %s missing %s", text, want)
		}
	}

	var back []Operation
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(back, ops) {
		t.Errorf("decoded %+v, want %+v", back, ops)
	}
}

func TestOperationUnknownType(t *testing.T) {
	var op Operation
	if err := json.Unmarshal([]byte(`{"type":"blur"}`), &op); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("got %v", err)
	}
	if _, err := json.Marshal(Operation{Type: OpTrim}); err == nil {
		t.Error("marshal without payload should fail")
	}
}

func TestOperationValidate(t *testing.T) {
	tests := []struct {
		name    string
		op      Operation
		wantErr bool
	}{
		{"valid trim", Operation{Type: OpTrim, Trim: &Trim{StartMs: 0, EndMs: 10}}, false},
		{"inverted trim", Operation{Type: OpTrim, Trim: &Trim{StartMs: 10, EndMs: 10}}, true},
		{"empty crop", Operation{Type: OpCrop, Crop: &Crop{Width: 0, Height: 10}}, true},
		{"split at zero", Operation{Type: OpSplit, Split: &Split{AtMs: 0, RemoveSegment: "before"}}, true},
		{"split side", Operation{Type: OpSplit, Split: &Split{AtMs: 5, RemoveSegment: "both"}}, true},
		{"zoom", Operation{Type: OpZoom, Zoom: &Zoom{Intensity: 0.4, DurationMs: 500}}, false},
		{"flat zoom", Operation{Type: OpZoom, Zoom: &Zoom{Intensity: 0, DurationMs: 500}}, true},
		{"smoothing range", Operation{Type: OpCursorEmphasis, CursorEmphasis: &CursorEmphasis{Smoothing: 1.2}}, true},
		{"preset name", Operation{Type: OpStylePreset, StylePreset: &StylePreset{}}, true},
		{"missing payload", Operation{Type: OpZoom}, true},
		{"unknown", Operation{Type: "blur"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidOperation) {
				t.Errorf("error %v does not wrap ErrInvalidOperation", err)
			}
		})
	}
}
