package analyzer

import "fmt"

// NewDetector creates a detector based on the specified variant
func NewDetector(variant string, prober Prober, opts Options) (Detector, error) {
	switch variant {
	case "freezedetect", "":
		if prober == nil {
			return nil, fmt.Errorf("freezedetect detector needs a prober")
		}
		return NewFreezeDetector(prober, opts), nil
	case "none":
		return NoopDetector{}, nil
	case "scdet":
		return nil, fmt.Errorf("scene-change detector not yet implemented")
	default:
		return nil, fmt.Errorf("unknown detector variant: %s", variant)
	}
}
