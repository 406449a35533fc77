package protocol

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"projd/internal/runloop"
	"projd/internal/service"
	"projd/internal/slogutil"
)

// DefaultDebounce is the quiet period before deferred tasks are drained.
const DefaultDebounce = 50 * time.Millisecond

// Options configures a Server.
type Options struct {
	In       io.Reader
	Out      io.Writer
	Logger   *slog.Logger
	Debounce time.Duration
	Version  string
}

// Server reads requests, applies them to the project service and drains
// the service's deferred queue once requests and watch events go quiet.
// Every service call happens on the goroutine running Serve.
type Server struct {
	svc      *service.Service
	in       io.Reader
	out      io.Writer
	logger   *slog.Logger
	version  string
	debounce *runloop.Debouncer
	handlers map[string]handlerFunc
}

// NewServer creates a server for svc. In and Out default to stdin and
// stdout.
func NewServer(svc *service.Service, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	in, out := opts.In, opts.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	delay := opts.Debounce
	if delay < 0 {
		delay = 0
	}
	s := &Server{
		svc:      svc,
		in:       in,
		out:      out,
		logger:   logger,
		version:  opts.Version,
		debounce: runloop.NewDebouncer(delay),
	}
	s.registerHandlers()
	return s
}

// Serve runs the request loop until the input ends or ctx is cancelled.
// Pending deferred tasks are drained before it returns on end of input.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("Server starting", "version", s.version)

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go readLines(s.in, lines, readErr)

	queue := s.svc.Queue()
	for {
		select {
		case <-ctx.Done():
			s.debounce.Cancel()
			s.logger.Info("Server shutting down", "reason", ctx.Err().Error())
			return nil

		case line, ok := <-lines:
			if !ok {
				s.debounce.Cancel()
				s.svc.Drain()
				select {
				case err := <-readErr:
					s.logger.Error("Input failed", "error", err.Error())
					return err
				default:
				}
				s.logger.Info("Server shutting down (EOF)")
				return nil
			}
			if resp := s.handleLine(ctx, line); resp != nil {
				if err := s.writeMessage(resp); err != nil {
					s.logger.Error("Error writing response", "error", err.Error())
				}
			}
			s.debounce.Trigger()

		case <-queue.Wake():
			s.debounce.Trigger()

		case <-s.debounce.C():
			if n := s.svc.Drain(); n > 0 {
				s.logger.Debug("Deferred tasks drained", "tasks", n)
			}
		}
	}
}
