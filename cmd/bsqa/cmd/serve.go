package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/bsqa/internal/api"
	"github.com/hugo-lorenzo-mato/bsqa/internal/metrics"
	"github.com/hugo-lorenzo-mato/bsqa/internal/session"
	"github.com/hugo-lorenzo-mato/bsqa/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the settings API server",
	Long: `Start the local HTTP API that a settings page drives.

Every page load opens its own form session (POST /api/v1/sessions). Saves
made by other pages or processes are streamed on /api/v1/events.

Examples:
  # Start with the configured address (default localhost:8090)
  bsqa serve

  # Start on custom host and port
  bsqa serve --host 0.0.0.0 --port 3000

  # Disable CORS (for production behind a reverse proxy)
  bsqa serve --no-cors`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveHost        string
	servePort        int
	serveNoCORS      bool
	serveMaxSessions int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "",
		"Host address to bind to (default from server.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0,
		"Port to listen on (default from server.port)")
	serveCmd.Flags().BoolVar(&serveNoCORS, "no-cors", false,
		"Disable CORS headers")
	serveCmd.Flags().IntVar(&serveMaxSessions, "max-sessions", 256,
		"Open form sessions kept before the oldest is closed (0 for no limit)")
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	metrics.Register(prometheus.DefaultRegisterer)

	pool := api.NewSessionPool(func() *session.ConfigFormSession {
		return app.NewSession()
	}, serveMaxSessions)

	opts := []api.ServerOption{
		api.WithLogger(app.Logger),
		api.WithGatherer(prometheus.DefaultGatherer),
		api.WithRequestTimeout(app.Config.Server.RequestTimeoutDuration()),
	}
	if app.Config.Server.CORS && !serveNoCORS {
		opts = append(opts, api.WithAllowedOrigins(app.Config.Server.AllowedOrigins))
	}
	server := api.NewServer(pool, app.Store, app.Bus, opts...)

	host := app.Config.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := app.Config.Server.Port
	if servePort != 0 {
		port = servePort
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	watcher := store.NewWatcher(app.Store, app.Bus, app.Logger, app.Config.Storage.PollIntervalDuration())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error {
		if err := server.ListenAndServe(gctx, addr); err != nil {
			return fmt.Errorf("serving on %s: %w", addr, err)
		}
		return nil
	})

	err = g.Wait()
	app.Logger.Info("server stopped")
	return err
}
