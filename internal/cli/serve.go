package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/cloister/internal/codegen"
	"github.com/roach88/cloister/internal/config"
	"github.com/roach88/cloister/internal/dispatch"
	"github.com/roach88/cloister/internal/engine"
	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/store"
	"github.com/roach88/cloister/internal/telemetry"
	"github.com/roach88/cloister/internal/transport"
	"github.com/roach88/cloister/internal/transport/telegram"
)

// shutdownTimeout bounds HTTP server and exporter shutdown.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database    string
	WebhookURL  string
	ListenAddr  string
	MetricsAddr string

	// BotOptions are appended to the Telegram client options (for testing).
	BotOptions []telegram.Option
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		Long: `Run the bot until interrupted.

Updates are received by long polling unless a webhook URL is configured, in
which case an HTTPS endpoint is registered with Telegram and served on the
listen address. Flags override the configuration file and environment.

Example:
  CLOISTER_TOKEN=123:abc cloister serve --db ./cloister.db
  cloister serve -c /etc/cloister.yaml --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.WebhookURL, "webhook-url", "", "public HTTPS base URL for webhook mode")
	cmd.Flags().StringVar(&opts.ListenAddr, "listen", "", "webhook listen address")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

// apply overlays non-empty flags on cfg.
func (o *ServeOptions) apply(cfg *config.Config) {
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.WebhookURL != "" {
		cfg.WebhookURL = o.WebhookURL
	}
	if o.ListenAddr != "" {
		cfg.ListenAddr = o.ListenAddr
	}
	if o.MetricsAddr != "" {
		cfg.MetricsAddr = o.MetricsAddr
	}
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	opts.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger := slog.Default()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, Version)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	logger.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	authz, err := cfg.Authorizer()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	botOpts := append([]telegram.Option{
		telegram.WithRate(cfg.SendRate, cfg.SendBurst),
		telegram.WithLogger(logger),
	}, opts.BotOptions...)
	bot, err := telegram.New(cfg.Token, botOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect to Telegram", err)
	}
	logger.Info("connected", "bot", bot.Username())

	notifier := engine.NewNotifier(bot, model.ChatID(cfg.AuditChat),
		engine.WithAuditTimeout(cfg.AuditTimeout),
		engine.WithNotifierLogger(logger),
	)
	defer notifier.Wait()

	gen := codegen.New(st, codegen.WithMaxAttempts(cfg.MaxCodeAttempts), codegen.WithLogger(logger))
	eng := engine.New(bot, authz, st, st, gen,
		engine.WithLogger(logger),
		engine.WithNotifier(notifier),
	)
	disp := dispatch.New(eng, dispatch.WithLogger(logger))

	if err := bot.SetCommands(menu()); err != nil {
		logger.Warn("failed to publish command menu", "error", err)
	}

	sink := func(upd transport.Update) {
		if !disp.Enqueue(upd) {
			logger.Warn("dropped update after shutdown", "actor", upd.Actor.ID)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCancel(disp.Run(gctx))
	})
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", engine.MetricsHandler(engine.NewRegistry()))
		g.Go(func() error {
			return serveHTTP(gctx, &http.Server{Addr: cfg.MetricsAddr, Handler: mux}, logger)
		})
	}
	if cfg.Webhook() {
		path := telegram.WebhookPath(cfg.Token)
		if err := bot.SetWebhook(cfg.WebhookURL + path); err != nil {
			return WrapExitError(ExitCommandError, "failed to register webhook", err)
		}
		mux := http.NewServeMux()
		mux.Handle(path, bot.WebhookHandler(sink))
		g.Go(func() error {
			return serveHTTP(gctx, &http.Server{Addr: cfg.ListenAddr, Handler: mux}, logger)
		})
	} else {
		g.Go(func() error {
			return ignoreCancel(bot.Poll(gctx, sink))
		})
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Bot started. Press Ctrl-C to stop.")
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "serve error", err)
	}
	logger.Info("bot stopped gracefully")
	return nil
}

// serveHTTP runs srv until ctx is cancelled.
func serveHTTP(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown %s: %w", srv.Addr, err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	return nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func menu() []telegram.Command {
	cmds := make([]telegram.Command, 0, len(engine.Commands))
	for _, c := range engine.Commands {
		cmds = append(cmds, telegram.Command{Name: c.Name, Description: c.Description})
	}
	return cmds
}
