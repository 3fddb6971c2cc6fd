// Package gateway selects the retrieval backend: the remote HTTP API or the
// embedded offline engine.
package gateway

import (
	"context"
	"time"

	"github.com/hqtran/keyseek/gateway/offline"
	"github.com/hqtran/keyseek/gateway/remote"
	"github.com/hqtran/keyseek/models"
)

// Searcher is the retrieval API surface consumed by the session machine and
// the CLI. Implementations must preserve the API's result ordering.
type Searcher interface {
	CreateSession(ctx context.Context) (models.SessionInfo, error)
	ListSessions(ctx context.Context) ([]models.SessionInfo, error)
	QueryText(ctx context.Context, sessionID string, req models.QueryRequest) (models.QueryResponse, error)
	QueryImage(ctx context.Context, sessionID string, req models.QueryRequest) (models.QueryResponse, error)
	History(ctx context.Context, sessionID string) (models.HistoryResponse, error)
	Health(ctx context.Context) (models.HealthStatus, error)
}

type Provider string

const (
	RemoteProvider  Provider = "remote"
	OfflineProvider Provider = "offline"
)

type Error struct{ msg string }

func (e *Error) Error() string { return e.msg }

var ErrUnsupportedProvider = &Error{"unsupported gateway provider"}

// Options carries provider-specific settings; only the fields for the chosen
// provider are consulted.
type Options struct {
	BaseURL string
	Timeout time.Duration

	Offline offline.Config
}

func NewSearcher(provider Provider, opts Options) (Searcher, error) {
	switch provider {
	case RemoteProvider:
		return remote.NewClient(opts.BaseURL, opts.Timeout), nil
	case OfflineProvider:
		return offline.NewEngine(opts.Offline)
	default:
		return nil, ErrUnsupportedProvider
	}
}
