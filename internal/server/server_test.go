package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/democlip/internal/edits"
	"github.com/ivlev/democlip/internal/engine"
	"github.com/ivlev/democlip/internal/metrics"
	"github.com/ivlev/democlip/internal/model"
	"github.com/ivlev/democlip/internal/storage"
)

type fakeRenderer struct {
	mu       sync.Mutex
	runs     []engine.RenderRequest
	versions []string
}

func (f *fakeRenderer) Render(_ context.Context, req engine.RenderRequest) (*engine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, req)
	return &engine.Result{}, nil
}

func (f *fakeRenderer) RenderVersion(_ context.Context, id string) (*engine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions = append(f.versions, id)
	return &engine.Result{}, nil
}

func newTestServer(t *testing.T) (*Server, *fakeRenderer) {
	t.Helper()
	store := storage.NewMemory()
	renderer := &fakeRenderer{}
	s, err := New(store, edits.NewChain(store, zerolog.Nop()), renderer, metrics.NewMetrics(), 2, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return s, renderer
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func createRun(t *testing.T, s *Server, id string) {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/v1/runs", `{"id":"`+id+`","sourceUrl":"/tmp/rec.webm"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create run: %d %s", rec.Code, rec.Body)
	}
}

func wait(t *testing.T, s *Server) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestCreateAndGetRun(t *testing.T) {
	s, _ := newTestServer(t)
	createRun(t, s, "run-1")

	rec := do(t, s, http.MethodGet, "/v1/runs/run-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get run: %d", rec.Code)
	}
	run := decodeBody[model.Run](t, rec)
	if run.Status != model.RunQueued || run.SourceURL != "/tmp/rec.webm" {
		t.Errorf("run = %+v", run)
	}

	if rec := do(t, s, http.MethodPost, "/v1/runs", `{"id":"run-1","sourceUrl":"/tmp/rec.webm"}`); rec.Code != http.StatusConflict {
		t.Errorf("duplicate run: %d", rec.Code)
	}
}

func TestCreateRunGeneratesID(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/v1/runs", `{"sourceUrl":"s3://bucket/rec.webm"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	if run := decodeBody[model.Run](t, rec); len(run.ID) != 26 {
		t.Errorf("id %q is not a ULID", run.ID)
	}
}

func TestErrorResponses(t *testing.T) {
	s, _ := newTestServer(t)
	createRun(t, s, "run-1")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   Code
	}{
		{"unknown run", http.MethodGet, "/v1/runs/nope", "", http.StatusNotFound, CodeNotFound},
		{"missing source", http.MethodPost, "/v1/runs", `{}`, http.StatusBadRequest, CodeBadRequest},
		{"malformed json", http.MethodPost, "/v1/runs", `{"id":`, http.StatusBadRequest, CodeBadRequest},
		{"edit unknown run", http.MethodPost, "/v1/runs/nope/edits", `{"operation":{"type":"trim","startMs":0,"endMs":900}}`, http.StatusNotFound, CodeNotFound},
		{"edit unknown parent", http.MethodPost, "/v1/runs/run-1/edits", `{"parentVersionId":"ghost","operation":{"type":"trim","startMs":0,"endMs":900}}`, http.StatusNotFound, CodeNotFound},
		{"edit invalid operation", http.MethodPost, "/v1/runs/run-1/edits", `{"operation":{"type":"trim","startMs":900,"endMs":100}}`, http.StatusBadRequest, CodeInvalidOperation},
		{"edit unknown type", http.MethodPost, "/v1/runs/run-1/edits", `{"operation":{"type":"blur"}}`, http.StatusBadRequest, CodeInvalidOperation},
		{"edit without operation", http.MethodPost, "/v1/runs/run-1/edits", `{}`, http.StatusBadRequest, CodeBadRequest},
		{"revert unknown run", http.MethodPost, "/v1/runs/nope/revert", "", http.StatusNotFound, CodeNotFound},
		{"versions unknown run", http.MethodGet, "/v1/runs/nope/versions", "", http.StatusNotFound, CodeNotFound},
		{"unknown version", http.MethodGet, "/v1/versions/nope", "", http.StatusNotFound, CodeNotFound},
		{"render invalid operation", http.MethodPost, "/v1/runs/run-1/render", `{"operations":[{"type":"zoom","intensity":-1}]}`, http.StatusBadRequest, CodeInvalidOperation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
			body := decodeBody[APIError](t, rec)
			if body.Code != tt.code || body.Message == "" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestRenderRun(t *testing.T) {
	s, renderer := newTestServer(t)
	createRun(t, s, "run-1")

	rec := do(t, s, http.MethodPost, "/v1/runs/run-1/render",
		`{"sections":[{"task":"Open settings","startMs":400}],"operations":[{"type":"style_preset","preset":"dramatic"}],"linkUrl":"https://example.test/pr/1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d %s", rec.Code, rec.Body)
	}
	wait(t, s)

	if len(renderer.runs) != 1 {
		t.Fatalf("renders = %d", len(renderer.runs))
	}
	got := renderer.runs[0]
	if got.RunID != "run-1" || got.InputVideoURL != "/tmp/rec.webm" || got.LinkURL != "https://example.test/pr/1" {
		t.Errorf("request = %+v", got)
	}
	if len(got.Sections) != 1 || *got.Sections[0].Task != "Open settings" {
		t.Errorf("sections = %+v", got.Sections)
	}
	if len(got.Operations) != 1 || got.Operations[0].Type != model.OpStylePreset {
		t.Errorf("operations = %+v", got.Operations)
	}
}

func TestRenderRejectsStartedRun(t *testing.T) {
	s, _ := newTestServer(t)
	createRun(t, s, "run-1")
	if _, err := s.store.UpdateRun(context.Background(), "run-1", func(r *model.Run) error {
		r.Status = model.RunCompleted
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	rec := do(t, s, http.MethodPost, "/v1/runs/run-1/render", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestEditChainOverHTTP(t *testing.T) {
	s, renderer := newTestServer(t)
	createRun(t, s, "run-1")

	trim := do(t, s, http.MethodPost, "/v1/runs/run-1/edits", `{"operation":{"type":"trim","startMs":0,"endMs":9000}}`)
	if trim.Code != http.StatusAccepted {
		t.Fatalf("trim: %d %s", trim.Code, trim.Body)
	}
	v1 := decodeBody[model.Version](t, trim)
	if v1.Version != 1 || v1.Status != model.VersionPending {
		t.Errorf("v1 = %+v", v1)
	}

	zoom := do(t, s, http.MethodPost, "/v1/runs/run-1/edits",
		`{"parentVersionId":"`+v1.ID+`","operation":{"type":"zoom","intensity":0.5,"centerX":100,"centerY":80,"startMs":1000,"durationMs":800}}`)
	if zoom.Code != http.StatusAccepted {
		t.Fatalf("zoom: %d %s", zoom.Code, zoom.Body)
	}
	v2 := decodeBody[model.Version](t, zoom)

	rec := do(t, s, http.MethodGet, "/v1/versions/"+v2.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get version: %d", rec.Code)
	}
	var got struct {
		Version             int               `json:"version"`
		ParentVersionID     string            `json:"parentVersionId"`
		EffectiveOperations []model.Operation `json:"effectiveOperations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Version != 2 || got.ParentVersionID != v1.ID {
		t.Errorf("version = %+v", got)
	}
	if len(got.EffectiveOperations) != 2 || got.EffectiveOperations[0].Type != model.OpTrim || got.EffectiveOperations[1].Type != model.OpZoom {
		t.Errorf("effective = %+v", got.EffectiveOperations)
	}

	revert := do(t, s, http.MethodPost, "/v1/runs/run-1/revert", "")
	if revert.Code != http.StatusAccepted {
		t.Fatalf("revert: %d", revert.Code)
	}
	v3 := decodeBody[model.Version](t, revert)
	if v3.Version != 3 || len(v3.Operations) != 0 {
		t.Errorf("revert = %+v", v3)
	}

	list := do(t, s, http.MethodGet, "/v1/runs/run-1/versions", "")
	versions := decodeBody[struct {
		Versions []model.Version `json:"versions"`
	}](t, list).Versions
	if len(versions) != 4 {
		t.Fatalf("versions = %d, want 4 including the root", len(versions))
	}
	for i, want := range []int{3, 2, 1, 0} {
		if versions[i].Version != want {
			t.Errorf("versions[%d] = %d, want %d", i, versions[i].Version, want)
		}
	}

	wait(t, s)
	if len(renderer.versions) != 3 {
		t.Errorf("version renders = %d, want 3", len(renderer.versions))
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := do(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}

	do(t, s, http.MethodGet, "/v1/runs/missing", "")
	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "democlip_http_requests_total") {
		t.Error("http counter not exported")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		code Code
	}{
		{model.ErrRunNotFound, CodeNotFound},
		{model.ErrVersionConflict, CodeConflict},
		{model.ErrInvalidTransition, CodeConflict},
		{model.ErrInvalidOperation, CodeInvalidOperation},
		{context.DeadlineExceeded, CodeInternal},
	}
	for _, tt := range tests {
		if got := classify(tt.err).Code; got != tt.code {
			t.Errorf("classify(%v) = %s, want %s", tt.err, got, tt.code)
		}
	}
}
