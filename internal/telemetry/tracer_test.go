package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitTracerExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	if _, err := InitTracer("test", &buf); err != nil {
		t.Fatal(err)
	}

	_, span := Tracer("democlip/test").Start(context.Background(), "render.probe")
	span.End()
	ShutdownTracer(context.Background(), zerolog.Nop())

	if !strings.Contains(buf.String(), "render.probe") {
		t.Errorf("span not exported: %s", buf.String())
	}
	if TracerProvider != nil {
		t.Error("provider should be cleared after shutdown")
	}
}

func TestShutdownWithoutInit(t *testing.T) {
	TracerProvider = nil
	ShutdownTracer(context.Background(), zerolog.Nop())
}
