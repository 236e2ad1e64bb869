package access

import (
	"context"
	"fmt"

	"vidsurvey/internal/client"
	"vidsurvey/internal/store"
)

// Session represents a read handle and its cleanup function.
type Session struct {
	Reader Reader
	// Daemon reports whether reads go through a running daemon.
	Daemon bool
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback uses the daemon when it answers a status request, then
// falls back to direct store access.
func OpenWithFallback(
	ctx context.Context,
	dial func() (*client.Client, error),
	openStore func() (*store.Store, error),
) (Session, error) {
	if dial != nil {
		if c, err := dial(); err == nil {
			if _, err := c.Status(ctx); err == nil {
				return Session{Reader: NewClientReader(c), Daemon: true}, nil
			}
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open store: no store opener configured")
	}
	st, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open store: %w", err)
	}
	return Session{
		Reader: NewStoreReader(st),
		close:  st.Close,
	}, nil
}
