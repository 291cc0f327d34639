package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/forgeline/forgeline/internal/config"
	"github.com/forgeline/forgeline/internal/experiment"
	"github.com/forgeline/forgeline/internal/quote"
	"github.com/forgeline/forgeline/internal/server"
	"github.com/forgeline/forgeline/internal/session"
	"github.com/forgeline/forgeline/internal/store"
	"github.com/forgeline/forgeline/internal/tracking"
)

var port int

const trackingBuffer = 1024

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the forgeline HTTP server.

The server provides:
  - Experiment assignments and conversions under /api/experiments
  - Instant quote pricing at /api/quote
  - Page script at /fl.js
  - Prometheus metrics at /metrics
  - Raw event access for admins at /admin/api/events

Example:
  forgeline serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Lookup("port") != nil && cmd.Flags().Changed("port") {
		settings.Server.Port = port
	}

	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	calc, err := loadCalculator()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withStore(func(s *store.SQLiteStore) error {
		// Closed before the store so buffered events are flushed.
		recorder := tracking.NewAsync(tracking.NewRecorder(s, logger), trackingBuffer, logger)
		defer recorder.Close()

		tracker := tracking.Multi{
			recorder,
			tracking.LogTracker{Logger: logger},
		}
		engine := experiment.NewEngine(registry,
			experiment.WithTracker(tracker),
			experiment.WithLogger(logger))

		g, ctx := errgroup.WithContext(ctx)

		sessions, closeSessions, err := sessionBackend(ctx, g, s)
		if err != nil {
			return err
		}
		defer closeSessions()

		srv := server.New(server.Deps{
			Store:     s,
			Engine:    engine,
			Quotes:    quote.NewService(calc, logger),
			Sessions:  sessions,
			Materials: calc.Tables().MaterialCodes(),
			Logger:    logger,
		}, server.Options{
			Port:            settings.Server.Port,
			TokenFile:       getTokenFilePath(),
			SessionCookie:   settings.Session.Cookie,
			SessionTTL:      settings.Session.TTL,
			QuotesPerMinute: settings.Quote.RatePerMinute,
			QuoteBurst:      settings.Quote.Burst,
			AllowedOrigins:  settings.Server.AllowedOrigins,
		})

		logger.Info("starting forgeline",
			zap.Int("port", settings.Server.Port),
			zap.String("db", dbPath),
			zap.String("sessions", settings.Session.Backend),
			zap.Int("experiments", registry.Len()))

		g.Go(func() error {
			return srv.Start(ctx)
		})

		return g.Wait()
	})
}

// sessionBackend picks the configured session store. SQLite sessions are
// purged periodically inside g until ctx ends.
func sessionBackend(ctx context.Context, g *errgroup.Group, s *store.SQLiteStore) (server.SessionFunc, func(), error) {
	ttl := settings.Session.TTL

	switch settings.Session.Backend {
	case config.SessionBackendMemory:
		mem := session.NewMemory(ttl, sweepInterval(ttl))
		return func(id string) experiment.Session { return mem.Session(id) },
			func() { _ = mem.Close() }, nil

	case config.SessionBackendSQLite:
		if ttl > 0 {
			g.Go(func() error {
				purgeSessions(ctx, s, ttl, sweepInterval(ttl))
				return nil
			})
		}
		return func(id string) experiment.Session { return s.Session(id) },
			func() {}, nil
	}

	return nil, nil, fmt.Errorf("session backend %q: %w", settings.Session.Backend, config.ErrUnknownBackend)
}

func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 10
	if interval > time.Hour {
		interval = time.Hour
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

func purgeSessions(ctx context.Context, s *store.SQLiteStore, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeSessions(ctx, time.Now().Add(-ttl))
			if err != nil {
				logger.Warn("failed to purge sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("purged idle session values", zap.Int64("rows", n))
			}
		}
	}
}
