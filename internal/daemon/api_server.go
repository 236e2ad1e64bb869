package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"vidsurvey/internal/api"
	"vidsurvey/internal/logging"
)

// drainTimeout bounds how long stop waits for in-flight requests.
const drainTimeout = 5 * time.Second

// apiServer runs the HTTP listener for the daemon's lifetime.
type apiServer struct {
	bind   string
	logger *slog.Logger
	server *http.Server

	mu   sync.Mutex
	addr string
	done chan struct{} // closed when Serve returns
	once sync.Once
}

func newAPIServer(bind string, handler *api.Server, logger *slog.Logger) *apiServer {
	return &apiServer{
		bind:   strings.TrimSpace(bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		server: &http.Server{
			Handler: handler.Handler(),
			// No read or write deadline: uploads are capped by size and
			// runs by the inference timeout.
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       time.Minute,
		},
	}
}

// start binds the listener and serves until ctx ends or stop is called.
func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api bind address not configured")
	}
	ln, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	done := make(chan struct{})
	s.mu.Lock()
	s.addr, s.done = ln.Addr().String(), done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	context.AfterFunc(ctx, s.stop)

	s.logger.Info("api server listening", logging.String("address", s.addr))
	return nil
}

// stop drains in-flight requests and waits for the serve loop to exit.
func (s *apiServer) stop() {
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn("api server did not drain in time", logging.Error(err))
			_ = s.server.Close()
		}
		s.mu.Lock()
		done := s.done
		s.addr = ""
		s.mu.Unlock()
		if done != nil {
			<-done
		}
	})
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
