package browser

import (
	"context"
	"errors"

	"github.com/ahrdadan/uicheck/internal/locator"
)

// ErrElementNotFound is returned when a locator does not resolve before the
// element timeout elapses.
var ErrElementNotFound = errors.New("element not found")

// Client is a running browser that can open sessions.
type Client interface {
	IsRunning() bool
	GetEndpoint() string
	OpenSession(ctx context.Context, url string, opts PageOptions) (Session, error)
}

// Session is one page navigated to a fixture URL. Every call resolves its
// locator again; nothing is cached between calls.
type Session interface {
	Click(ctx context.Context, target locator.Locator) error
	TypeText(ctx context.Context, target locator.Locator, text string) error
	Read(ctx context.Context, prop locator.Property) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	URL() string
	Close() error
}
