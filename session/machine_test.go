package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/hqtran/keyseek/models"
)

// fakeBackend scripts gateway responses and counts calls so tests can assert
// that local rejections never reach the network.
type fakeBackend struct {
	calls      int
	createErr  error
	queryErr   error
	historyErr error
	results    []models.QueryResult
	history    []models.HistoryItem
	lastReq    models.QueryRequest
	lastImage  bool
}

func (f *fakeBackend) CreateSession(context.Context) (models.SessionInfo, error) {
	f.calls++
	if f.createErr != nil {
		return models.SessionInfo{}, f.createErr
	}
	return models.SessionInfo{SessionID: "11111111-2222-3333-4444-555555555555"}, nil
}

func (f *fakeBackend) QueryText(_ context.Context, _ string, req models.QueryRequest) (models.QueryResponse, error) {
	f.calls++
	f.lastReq = req
	f.lastImage = false
	if f.queryErr != nil {
		return models.QueryResponse{}, f.queryErr
	}
	return models.QueryResponse{QueryID: "q1", Results: f.results}, nil
}

func (f *fakeBackend) QueryImage(_ context.Context, _ string, req models.QueryRequest) (models.QueryResponse, error) {
	f.calls++
	f.lastReq = req
	f.lastImage = true
	if f.queryErr != nil {
		return models.QueryResponse{}, f.queryErr
	}
	return models.QueryResponse{QueryID: "q1", Results: f.results}, nil
}

func (f *fakeBackend) History(_ context.Context, sessionID string) (models.HistoryResponse, error) {
	f.calls++
	if f.historyErr != nil {
		return models.HistoryResponse{}, f.historyErr
	}
	return models.HistoryResponse{SessionID: sessionID, Queries: f.history}, nil
}

func quietOpts() Options {
	return Options{Logger: log.New(io.Discard, "", 0)}
}

func wireResult(id, videoID string) models.QueryResult {
	meta, _ := json.Marshal(map[string]any{"title": "clip " + id})
	return models.QueryResult{KeyframeID: id, VideoID: videoID, TimestampMS: 5000, Metadata: meta, Score: 0.8}
}

func initialized(t *testing.T, b *fakeBackend) *Machine {
	t.Helper()
	m := NewMachine(b, quietOpts())
	if err := m.Initialize(context.Background(), ""); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	b.calls = 0
	return m
}

func TestEmptySearchRejectedLocally(t *testing.T) {
	b := &fakeBackend{}
	m := initialized(t, b)

	err := m.Search(context.Background(), models.QueryRequest{})
	if !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("want ErrEmptyQuery, got %v", err)
	}
	if b.calls != 0 {
		t.Fatalf("empty query must not reach the backend, calls = %d", b.calls)
	}
	if st := m.Snapshot(); st.IsLoading || st.HasSearched {
		t.Fatalf("rejected search must not advance state: %+v", st)
	}
}

func TestSearchAppendsExactlyOneStep(t *testing.T) {
	b := &fakeBackend{results: []models.QueryResult{wireResult("k1", "v1"), wireResult("k2", "v2")}}
	m := initialized(t, b)

	for i := 1; i <= 3; i++ {
		if err := m.Search(context.Background(), models.QueryRequest{TextQuery: "bicycle"}); err != nil {
			t.Fatalf("Search %d: %v", i, err)
		}
		st := m.Snapshot()
		if len(st.History) != i {
			t.Fatalf("after %d searches history has %d steps", i, len(st.History))
		}
		if st.CurrentStep != len(st.History) {
			t.Fatalf("CurrentStep %d != len(History) %d", st.CurrentStep, len(st.History))
		}
		if !st.HasSearched || st.IsLoading || st.Error != "" {
			t.Fatalf("bad post-search state: %+v", st)
		}
	}
}

func TestResultsReplacedWholesale(t *testing.T) {
	b := &fakeBackend{results: []models.QueryResult{wireResult("k1", "v1"), wireResult("k2", "v2")}}
	m := initialized(t, b)

	if err := m.Search(context.Background(), models.QueryRequest{TextQuery: "wide"}); err != nil {
		t.Fatal(err)
	}
	b.results = []models.QueryResult{wireResult("k3", "v3")}
	if err := m.Search(context.Background(), models.QueryRequest{TextQuery: "narrow"}); err != nil {
		t.Fatal(err)
	}

	st := m.Snapshot()
	if len(st.Results) != 1 || st.Results[0].ID != "k3" {
		t.Fatalf("results should be the last response only: %+v", st.Results)
	}
	if !st.Converged() {
		t.Fatal("one result after two steps should trip the convergence contract")
	}
}

func TestFailedSearchLeavesPriorResultsAndHistory(t *testing.T) {
	b := &fakeBackend{results: []models.QueryResult{wireResult("k1", "v1")}}
	m := initialized(t, b)
	if err := m.Search(context.Background(), models.QueryRequest{TextQuery: "first"}); err != nil {
		t.Fatal(err)
	}

	b.queryErr = &models.APIError{Detail: "upstream down", StatusCode: 502}
	err := m.Search(context.Background(), models.QueryRequest{TextQuery: "second"})
	if err == nil {
		t.Fatal("expected error")
	}

	st := m.Snapshot()
	if st.Error == "" || st.ErrorKind != ErrorKindSearch {
		t.Fatalf("error not surfaced: %+v", st)
	}
	if len(st.History) != 1 {
		t.Fatalf("failed search must not append history, got %d steps", len(st.History))
	}
	if len(st.Results) != 1 || st.Results[0].ID != "k1" {
		t.Fatalf("failed search must leave prior results untouched: %+v", st.Results)
	}
	if st.IsLoading {
		t.Fatal("loading flag must clear on failure")
	}
}

func TestImageChannelRoutesToImageEndpoint(t *testing.T) {
	b := &fakeBackend{}
	m := initialized(t, b)

	if err := m.Search(context.Background(), models.QueryRequest{Image: "aGVsbG8="}); err != nil {
		t.Fatal(err)
	}
	if !b.lastImage {
		t.Fatal("image payload should route to the image query endpoint")
	}

	if err := m.Refine(context.Background(), "just text"); err != nil {
		t.Fatal(err)
	}
	if b.lastImage {
		t.Fatal("refine is text-only")
	}
	if b.lastReq.TextQuery != "just text" {
		t.Fatalf("refine request = %+v", b.lastReq)
	}
}

func TestResetIdempotentAndPreservesIdentity(t *testing.T) {
	b := &fakeBackend{results: []models.QueryResult{wireResult("k1", "v1")}}
	m := initialized(t, b)
	if err := m.Search(context.Background(), models.QueryRequest{TextQuery: "x"}); err != nil {
		t.Fatal(err)
	}

	id := m.Snapshot().SessionID
	m.Reset()
	first := m.Snapshot()
	m.Reset()
	second := m.Snapshot()

	for _, st := range []State{first, second} {
		if st.SessionID != id {
			t.Fatalf("reset must keep identity, got %q", st.SessionID)
		}
		if len(st.Results) != 0 || len(st.History) != 0 || st.CurrentStep != 0 ||
			st.HasSearched || st.IsLoading || st.Error != "" {
			t.Fatalf("reset state not clean: %+v", st)
		}
	}
}

func TestStaleCompletionDiscarded(t *testing.T) {
	release := make(chan struct{})
	b := &blockingBackend{
		release: release,
		started: make(chan struct{}),
		fast:    []models.QueryResult{wireResult("fast", "v-fast")},
		slow:    []models.QueryResult{wireResult("slow", "v-slow")},
	}
	m := NewMachine(b, quietOpts())
	if err := m.Initialize(context.Background(), "11111111-2222-3333-4444-555555555555"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error)
	go func() { done <- m.Search(context.Background(), models.QueryRequest{TextQuery: "slow"}) }()
	<-b.started

	// Second search begins while the first is in flight and wins.
	if err := m.Search(context.Background(), models.QueryRequest{TextQuery: "fast"}); err != nil {
		t.Fatal(err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("stale search should be discarded silently, got %v", err)
	}

	st := m.Snapshot()
	if len(st.Results) != 1 || st.Results[0].ID != "fast" {
		t.Fatalf("stale completion overwrote newer results: %+v", st.Results)
	}
	if len(st.History) != 1 {
		t.Fatalf("stale completion appended history: %d steps", len(st.History))
	}
}

type blockingBackend struct {
	release chan struct{}
	started chan struct{}
	fast    []models.QueryResult
	slow    []models.QueryResult
	first   bool
}

func (b *blockingBackend) CreateSession(context.Context) (models.SessionInfo, error) {
	return models.SessionInfo{SessionID: "11111111-2222-3333-4444-555555555555"}, nil
}

func (b *blockingBackend) QueryText(_ context.Context, _ string, req models.QueryRequest) (models.QueryResponse, error) {
	if !b.first {
		b.first = true
		close(b.started)
		<-b.release
		return models.QueryResponse{QueryID: "slow", Results: b.slow}, nil
	}
	return models.QueryResponse{QueryID: "fast", Results: b.fast}, nil
}

func (b *blockingBackend) QueryImage(ctx context.Context, id string, req models.QueryRequest) (models.QueryResponse, error) {
	return b.QueryText(ctx, id, req)
}

func (b *blockingBackend) History(_ context.Context, id string) (models.HistoryResponse, error) {
	return models.HistoryResponse{SessionID: id}, nil
}

func TestInitializeReplaysHistoryBestEffort(t *testing.T) {
	persisted := "11111111-2222-3333-4444-555555555555"
	b := &fakeBackend{history: []models.HistoryItem{
		{QueryID: "h1", TextQuery: "bicycle", Results: []models.QueryResult{wireResult("k1", "v1"), wireResult("k2", "v2")}},
		{QueryID: "h2", TextQuery: "bicycle ho chi minh", Results: []models.QueryResult{wireResult("k1", "v1")}},
	}}
	m := NewMachine(b, quietOpts())
	if err := m.Initialize(context.Background(), persisted); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	st := m.Snapshot()
	if st.SessionID != persisted {
		t.Fatalf("persisted id not reused: %q", st.SessionID)
	}
	if len(st.History) != 2 || st.CurrentStep != 2 {
		t.Fatalf("history not replayed: %+v", st)
	}
	if len(st.Results) != 1 || st.Results[0].ID != "k1" {
		t.Fatalf("results should come from the last replayed query: %+v", st.Results)
	}
	if !st.HasSearched {
		t.Fatal("replayed session should count as searched")
	}

	// Replay failure is logged, not surfaced.
	b2 := &fakeBackend{historyErr: errors.New("boom")}
	m2 := NewMachine(b2, quietOpts())
	if err := m2.Initialize(context.Background(), persisted); err != nil {
		t.Fatalf("replay failure must not block initialization: %v", err)
	}
	if st := m2.Snapshot(); st.Error != "" || len(st.History) != 0 {
		t.Fatalf("failed replay should leave a clean ready state: %+v", st)
	}
}

func TestInitializeCreateFailureIsBlocking(t *testing.T) {
	b := &fakeBackend{createErr: errors.New("api down")}
	m := NewMachine(b, quietOpts())
	if err := m.Initialize(context.Background(), "not-a-uuid"); err == nil {
		t.Fatal("expected create failure to surface")
	}
	st := m.Snapshot()
	if st.ErrorKind != ErrorKindInit {
		t.Fatalf("init failure must be distinguishable: %+v", st)
	}
}

func TestSelectCollapseMode(t *testing.T) {
	b := &fakeBackend{results: []models.QueryResult{wireResult("k1", "v1"), wireResult("k2", "v2")}}
	opts := quietOpts()
	opts.CollapseOnSelect = true
	m := NewMachine(b, opts)
	if err := m.Initialize(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Search(context.Background(), models.QueryRequest{TextQuery: "x"}); err != nil {
		t.Fatal(err)
	}

	item, ok := m.FindResult("k2")
	if !ok {
		t.Fatal("FindResult should locate k2")
	}
	m.Select(item)

	st := m.Snapshot()
	if len(st.Results) != 1 || st.Results[0].ID != "k2" {
		t.Fatalf("select should collapse results: %+v", st.Results)
	}
	if last := st.History[len(st.History)-1]; last.Label != "Final Selection" || !last.Completed {
		t.Fatalf("missing terminal step: %+v", last)
	}
	if !st.Converged() {
		t.Fatal("collapsed state must be converged")
	}
}

func TestSelectObservationalMode(t *testing.T) {
	b := &fakeBackend{results: []models.QueryResult{wireResult("k1", "v1"), wireResult("k2", "v2")}}
	m := initialized(t, b)
	if err := m.Search(context.Background(), models.QueryRequest{TextQuery: "x"}); err != nil {
		t.Fatal(err)
	}
	before := m.Snapshot()

	item, _ := m.FindResult("k1")
	m.Select(item)

	after := m.Snapshot()
	if len(after.Results) != len(before.Results) || len(after.History) != len(before.History) {
		t.Fatalf("observational select mutated state: %+v", after)
	}
}
