package server

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hqtran/keyseek/models"
	"github.com/hqtran/keyseek/session"
	"github.com/hqtran/keyseek/session/inmemory"
	"github.com/hqtran/keyseek/submission"
)

func newSubmissionAPI(t *testing.T, backend *fakeSearcher) *echo.Echo {
	t.Helper()
	e := echo.New()
	logger := log.New(io.Discard, "", 0)
	e.HTTPErrorHandler = errorHandler(logger)
	manager := session.NewManager(inmemory.New(), backend, session.Options{Logger: logger})
	api := e.Group("/api")
	(&SearchHandler{Manager: manager, Gateway: backend, Metrics: newTestMetrics(manager), Logger: logger}).Register(api)
	(&SubmissionHandler{Sessions: manager, Lists: submission.NewManager()}).Register(api)
	return e
}

func TestSubmissionAddFromResult(t *testing.T) {
	backend := &fakeSearcher{results: []models.QueryResult{
		{
			KeyframeID:  "kf-1",
			VideoID:     "L23_V015",
			TimestampMS: 15000,
			Score:       0.9,
			Metadata:    json.RawMessage(`{"title":"Marathon finish"}`),
		},
	}}
	e := newSubmissionAPI(t, backend)

	rec := doJSON(e, http.MethodPost, "/api/search", `{"text":"marathon"}`, "")
	sid := rec.Header().Get(SessionHeader)

	rec = doJSON(e, http.MethodPost, "/api/submission", `{"result_id":"kf-1"}`, sid)
	if rec.Code != http.StatusOK {
		t.Fatalf("add: expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var entry submission.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.VideoID != "L23_V015" || entry.VideoTitle != "Marathon finish" {
		t.Fatalf("entry not seeded from the result: %+v", entry)
	}
	// 15s at the default 30fps
	if entry.FrameIdx != 450 {
		t.Fatalf("frame idx = %d, want 450", entry.FrameIdx)
	}
}

func TestSubmissionAddFromResultWithCapturedFrame(t *testing.T) {
	backend := &fakeSearcher{results: []models.QueryResult{
		{KeyframeID: "kf-1", VideoID: "L01_V001", TimestampMS: 5000, Score: 0.8},
	}}
	e := newSubmissionAPI(t, backend)

	rec := doJSON(e, http.MethodPost, "/api/search", `{"text":"bicycle"}`, "")
	sid := rec.Header().Get(SessionHeader)

	rec = doJSON(e, http.MethodPost, "/api/submission", `{"result_id":"kf-1","frame_idx":321}`, sid)
	var entry submission.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.FrameIdx != 321 {
		t.Fatalf("captured frame should win, got %d", entry.FrameIdx)
	}
}

func TestSubmissionAddUnknownResult(t *testing.T) {
	e := newSubmissionAPI(t, &fakeSearcher{})

	rec := doJSON(e, http.MethodPost, "/api/submission", `{"result_id":"nope"}`, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestSubmissionManualEntry(t *testing.T) {
	e := newSubmissionAPI(t, &fakeSearcher{})

	rec := doJSON(e, http.MethodPost, "/api/submission", `{"frame_idx":42}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("manual add: expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var entry submission.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if !strings.HasPrefix(entry.VideoID, "manual-") || entry.FrameIdx != 42 {
		t.Fatalf("unexpected manual entry: %+v", entry)
	}

	rec = doJSON(e, http.MethodPost, "/api/submission", `{}`, rec.Header().Get(SessionHeader))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("manual add without frame_idx: expected 422 got %d", rec.Code)
	}
}

func TestSubmissionEditAndRemove(t *testing.T) {
	e := newSubmissionAPI(t, &fakeSearcher{})

	rec := doJSON(e, http.MethodPost, "/api/submission", `{"video_id":"L01_V001","frame_idx":100}`, "")
	sid := rec.Header().Get(SessionHeader)
	var entry submission.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}

	rec = doJSON(e, http.MethodPatch, "/api/submission/"+entry.ID, `{"frame_idx":250}`, sid)
	if rec.Code != http.StatusOK {
		t.Fatalf("edit: expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var edited submission.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &edited); err != nil {
		t.Fatalf("decode edited: %v", err)
	}
	if edited.FrameIdx != 250 {
		t.Fatalf("frame idx = %d, want 250", edited.FrameIdx)
	}

	rec = doJSON(e, http.MethodDelete, "/api/submission/"+entry.ID, "", sid)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove: expected 204 got %d", rec.Code)
	}
	rec = doJSON(e, http.MethodDelete, "/api/submission/"+entry.ID, "", sid)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second remove: expected 404 got %d", rec.Code)
	}
}

func TestSubmissionExportCSV(t *testing.T) {
	e := newSubmissionAPI(t, &fakeSearcher{})

	rec := doJSON(e, http.MethodGet, "/api/submission/export", "", "")
	sid := rec.Header().Get(SessionHeader)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("empty export: expected 404 got %d", rec.Code)
	}

	doJSON(e, http.MethodPost, "/api/submission", `{"video_id":"L23_V015","frame_idx":450,"video_title":"Marathon finish"}`, sid)

	rec = doJSON(e, http.MethodGet, "/api/submission/export", "", sid)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type = %q", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "video_frames_") {
		t.Fatalf("content disposition = %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 || lines[0] != "video_id,frame_idx,video_title,added_at" {
		t.Fatalf("unexpected csv: %q", rec.Body.String())
	}
	if !strings.HasPrefix(lines[1], "L23_V015,450,Marathon finish,") {
		t.Fatalf("csv row = %q", lines[1])
	}
}

func TestSubmissionListsArePerSession(t *testing.T) {
	e := newSubmissionAPI(t, &fakeSearcher{})

	rec := doJSON(e, http.MethodPost, "/api/submission", `{"video_id":"L01_V001","frame_idx":1}`, "")
	other := doJSON(e, http.MethodGet, "/api/submission", "", "")

	var entries []submission.Entry
	if err := json.Unmarshal(other.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("fresh session must start with an empty list, got %d", len(entries))
	}

	mine := doJSON(e, http.MethodGet, "/api/submission", "", rec.Header().Get(SessionHeader))
	if err := json.Unmarshal(mine.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the added entry, got %d", len(entries))
	}
}
