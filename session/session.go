// Package session owns the search session state: current results, the
// append-only history trail, and the operations that advance them. All
// mutation funnels through Machine; nothing else touches State.
package session

import (
	"context"
	"errors"
	"regexp"

	"github.com/hqtran/keyseek/models"
)

// ErrNotFound is returned by stores for unknown session ids.
var ErrNotFound = errors.New("session not found")

// sessionIDPattern matches UUID-shaped identifiers; anything else persisted
// by a client is discarded rather than reused.
var sessionIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

func ValidID(id string) bool { return sessionIDPattern.MatchString(id) }

// Error kinds kept on State so the presentation layer can tell a blocking
// initialization failure from an ordinary search failure.
const (
	ErrorKindInit   = "init"
	ErrorKindSearch = "search"
)

// State is the aggregate owned by a Machine. CurrentStep always equals
// len(History) after a completed step-adding transition.
type State struct {
	SessionID   string               `json:"session_id"`
	Results     []models.ResultItem  `json:"results"`
	History     []models.HistoryStep `json:"history"`
	CurrentStep int                  `json:"current_step"`
	IsLoading   bool                 `json:"is_loading"`
	HasSearched bool                 `json:"has_searched"`
	Error       string               `json:"error,omitempty"`
	ErrorKind   string               `json:"error_kind,omitempty"`
}

// Converged reports the single-match terminal condition: exactly one result
// after at least one completed search step.
func (s State) Converged() bool {
	return len(s.Results) == 1 && len(s.History) > 0
}

// Store persists session state across requests and restarts, keyed by
// session id.
type Store interface {
	Load(ctx context.Context, id string) (State, error)
	Save(ctx context.Context, st State) error
	Delete(ctx context.Context, id string) error
}

// Backend is the slice of the retrieval gateway the machine consumes.
type Backend interface {
	CreateSession(ctx context.Context) (models.SessionInfo, error)
	QueryText(ctx context.Context, sessionID string, req models.QueryRequest) (models.QueryResponse, error)
	QueryImage(ctx context.Context, sessionID string, req models.QueryRequest) (models.QueryResponse, error)
	History(ctx context.Context, sessionID string) (models.HistoryResponse, error)
}
