package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/forgeline/forgeline/internal/experiment"
	"github.com/forgeline/forgeline/internal/quote"
	"github.com/forgeline/forgeline/internal/store"
)

// EventStore is the part of the store the HTTP layer reads.
type EventStore interface {
	ListEvents(ctx context.Context, experimentID string) ([]*store.Event, error)
	CountEvents(ctx context.Context) (int, error)
	SizeBytes(ctx context.Context) (int64, error)
}

// SessionFunc opens the session with the given id.
type SessionFunc func(id string) experiment.Session

type Deps struct {
	Store     EventStore
	Engine    *experiment.Engine
	Quotes    *quote.Service
	Sessions  SessionFunc
	Materials []string
	Logger    *zap.Logger
}

type Options struct {
	Port          int
	TokenFile     string
	SessionCookie string
	SessionTTL    time.Duration

	// QuotesPerMinute of zero disables throttling.
	QuotesPerMinute float64
	QuoteBurst      int

	// AllowedOrigins may call the API with credentials.
	AllowedOrigins []string
}

type Server struct {
	store     EventStore
	engine    *experiment.Engine
	quotes    *quote.Service
	sessions  SessionFunc
	materials []string
	logger    *zap.Logger

	port      int
	token     string
	tokenFile string
	cookie    string
	cookieTTL time.Duration
	limiter   *ipLimiter
	origins   map[string]bool
	router    *http.ServeMux
	startTime time.Time
}

func New(deps Deps, opts Options) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cookie := opts.SessionCookie
	if cookie == "" {
		cookie = "fl_sid"
	}

	srv := &Server{
		store:     deps.Store,
		engine:    deps.Engine,
		quotes:    deps.Quotes,
		sessions:  deps.Sessions,
		materials: deps.Materials,
		logger:    logger,
		port:      opts.Port,
		token:     generateToken(),
		tokenFile: opts.TokenFile,
		cookie:    cookie,
		cookieTTL: opts.SessionTTL,
		origins:   make(map[string]bool, len(opts.AllowedOrigins)),
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}
	for _, origin := range opts.AllowedOrigins {
		srv.origins[strings.TrimSuffix(origin, "/")] = true
	}
	if opts.QuotesPerMinute > 0 {
		burst := opts.QuoteBurst
		if burst < 1 {
			burst = 1
		}
		srv.limiter = newIPLimiter(rate.Limit(opts.QuotesPerMinute/60), burst)
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/fl.js", s.handleClientJS)
	s.router.HandleFunc("/api/experiments", s.cors(s.handleExperiments))
	s.router.HandleFunc("/api/experiments/{id}/assignment", s.cors(s.handleAssignment))
	s.router.HandleFunc("/api/experiments/{id}/conversions", s.cors(s.handleConversion))
	s.router.HandleFunc("/api/materials", s.cors(s.handleMaterials))
	s.router.HandleFunc("/api/quote", s.cors(s.handleQuote))
	s.router.Handle("/metrics", promhttp.Handler())

	// Admin endpoints (protected)
	s.router.Handle("/admin/api/events", s.authMiddleware(http.HandlerFunc(s.handleAdminEvents)))
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	return s.StartWithOptions(ctx, true)
}

// StartQuiet starts the server without printing startup messages
func (s *Server) StartQuiet(ctx context.Context) error {
	return s.StartWithOptions(ctx, false)
}

func (s *Server) StartWithOptions(ctx context.Context, printMessages bool) error {
	// Write token to file for the token command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.logger.Warn("failed to write token file", zap.String("path", s.tokenFile), zap.Error(err))
		}
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if printMessages {
		fmt.Println()
		fmt.Printf("forgeline running on http://localhost:%d\n", s.port)
		fmt.Printf("Events API: http://localhost:%d/admin/api/events?token=%s\n", s.port, s.token)
		fmt.Println()
		fmt.Println("Press Ctrl+C to stop")
	}
	s.logger.Info("server started", zap.String("addr", ln.Addr().String()))

	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	s.logger.Info("shutting down server")
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a time-based token if crypto/rand fails
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
