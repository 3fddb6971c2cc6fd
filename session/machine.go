package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/hqtran/keyseek/models"
)

// ErrEmptyQuery rejects a search before any network call is made.
var ErrEmptyQuery = errors.New("at least one search field must be provided")

// ErrNoSession rejects operations on a machine that was never initialized.
var ErrNoSession = errors.New("no active session")

// Options tunes machine behavior per deployment mode.
type Options struct {
	// CollapseOnSelect makes Select terminal: results shrink to the chosen
	// item and a "Final Selection" step is appended. Enabled in offline
	// standalone mode; against the live API selection is observational.
	CollapseOnSelect bool
	Logger           *log.Logger
}

// Machine is the search session state machine. A generation counter guards
// the single in-flight-request invariant: when a newer operation starts
// before an older one completes, the older completion is discarded without
// touching results, history, or error.
type Machine struct {
	mu      sync.Mutex
	st      State
	gen     uint64
	backend Backend
	opts    Options
}

func NewMachine(backend Backend, opts Options) *Machine {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[SESSION] ", log.LstdFlags)
	}
	return &Machine{backend: backend, opts: opts}
}

// Restore builds a machine around previously persisted state.
func Restore(st State, backend Backend, opts Options) *Machine {
	m := NewMachine(backend, opts)
	st.IsLoading = false // loading never survives a restart
	m.st = st
	return m
}

// Snapshot returns a copy of the current state safe to hand to callers.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() State {
	st := m.st
	st.Results = append([]models.ResultItem(nil), m.st.Results...)
	st.History = append([]models.HistoryStep(nil), m.st.History...)
	return st
}

// Initialize establishes session identity. A valid persisted id is reused
// and its server-side history replayed best-effort: replay failures are
// logged and leave the machine ready with an empty trail. Without a valid
// id a fresh session is created through the backend; that failure is
// blocking and marked as an initialization error.
func (m *Machine) Initialize(ctx context.Context, persistedID string) error {
	if ValidID(persistedID) {
		m.mu.Lock()
		m.st = State{SessionID: persistedID}
		m.mu.Unlock()

		hist, err := m.backend.History(ctx, persistedID)
		if err != nil {
			m.opts.Logger.Printf("history replay for %s failed: %v", persistedID, err)
			return nil
		}
		m.mu.Lock()
		m.replayLocked(hist)
		m.mu.Unlock()
		return nil
	}

	info, err := m.backend.CreateSession(ctx)
	if err != nil {
		m.mu.Lock()
		m.st.Error = "failed to initialize session"
		m.st.ErrorKind = ErrorKindInit
		m.mu.Unlock()
		m.opts.Logger.Printf("create session: %v", err)
		return err
	}
	m.mu.Lock()
	m.st = State{SessionID: info.SessionID}
	m.mu.Unlock()
	return nil
}

func (m *Machine) replayLocked(hist models.HistoryResponse) {
	for i, q := range hist.Queries {
		req := q.Request()
		m.st.History = append(m.st.History, models.HistoryStep{
			ID:           q.QueryID,
			Label:        stepLabel(i+1, req.Type()),
			Query:        req.Literal(),
			QueryType:    req.Type(),
			ResultsCount: len(q.Results),
			Completed:    true,
		})
	}
	m.st.CurrentStep = len(m.st.History)
	if n := len(hist.Queries); n > 0 {
		m.st.Results = models.NormalizeAll(hist.Queries[n-1].Results)
		m.st.HasSearched = true
	}
}

// Search submits the query and, on success, replaces results wholesale and
// appends exactly one history step. A failure sets the error and leaves
// prior results and history untouched.
func (m *Machine) Search(ctx context.Context, req models.QueryRequest) error {
	m.mu.Lock()
	if m.st.SessionID == "" {
		m.mu.Unlock()
		return ErrNoSession
	}
	if req.IsEmpty() {
		m.mu.Unlock()
		return ErrEmptyQuery
	}
	m.gen++
	gen := m.gen
	m.st.IsLoading = true
	m.st.Error = ""
	m.st.ErrorKind = ""
	sessionID := m.st.SessionID
	m.mu.Unlock()

	var resp models.QueryResponse
	var err error
	if req.HasImage() {
		resp, err = m.backend.QueryImage(ctx, sessionID, req)
	} else {
		resp, err = m.backend.QueryText(ctx, sessionID, req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		// A newer operation superseded this one; its outcome owns the state.
		m.opts.Logger.Printf("discarding stale search completion for %s", sessionID)
		return nil
	}
	m.st.IsLoading = false
	if err != nil {
		m.st.Error = err.Error()
		m.st.ErrorKind = ErrorKindSearch
		return err
	}

	m.st.Results = models.NormalizeAll(resp.Results)
	stepID := resp.QueryID
	if stepID == "" {
		stepID = uuid.NewString()
	}
	m.st.History = append(m.st.History, models.HistoryStep{
		ID:           stepID,
		Label:        stepLabel(len(m.st.History)+1, req.Type()),
		Query:        req.Literal(),
		QueryType:    req.Type(),
		ResultsCount: len(m.st.Results),
		Completed:    true,
	})
	m.st.CurrentStep = len(m.st.History)
	m.st.HasSearched = true
	return nil
}

// Refine narrows the current result set by re-querying with a plain text
// channel; nothing is filtered client-side.
func (m *Machine) Refine(ctx context.Context, text string) error {
	return m.Search(ctx, models.QueryRequest{TextQuery: text})
}

// Select records the user's choice. In collapse mode it is terminal:
// results shrink to the chosen item and a completed Final Selection step is
// appended. Otherwise it only logs.
func (m *Machine) Select(item models.ResultItem) {
	if !m.opts.CollapseOnSelect {
		m.opts.Logger.Printf("selected %s (video %s)", item.ID, item.VideoID)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.Results = []models.ResultItem{item}
	m.st.History = append(m.st.History, models.HistoryStep{
		ID:           uuid.NewString(),
		Label:        "Final Selection",
		Query:        item.Title,
		QueryType:    models.QueryTypeText,
		ResultsCount: 1,
		Completed:    true,
	})
	m.st.CurrentStep = len(m.st.History)
}

// Reset clears everything except session identity. Calling it repeatedly is
// a no-op after the first call.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++ // orphan any in-flight operation
	m.st = State{SessionID: m.st.SessionID}
}

// Busy reports whether an operation is in flight; the HTTP layer refuses
// overlapping submissions instead of queueing them.
func (m *Machine) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.IsLoading
}

// FindResult looks an item up by keyframe or video id in the current
// result set.
func (m *Machine) FindResult(id string) (models.ResultItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.st.Results {
		if r.ID == id || r.VideoID == id {
			return r, true
		}
	}
	return models.ResultItem{}, false
}

func stepLabel(n int, qt models.QueryType) string {
	return fmt.Sprintf("Step %d: %s search", n, qt)
}
