package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"genaid/internal/backend"
	"genaid/internal/config"
	"genaid/internal/httpapi"
	"genaid/internal/session"
	"genaid/pkg/types"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "genaid",
		Short:         "On-device generative model session daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var (
		cfgPath string
		addr    string
		logLvl  string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			// Flags win over file and env.
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLvl
			}
			if cfg.Addr == "" {
				cfg.Addr = ":8484"
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to config file (.toml/.yaml/.json)")
	cmd.Flags().StringVar(&addr, "addr", ":8484", "HTTP listen address")
	cmd.Flags().StringVar(&logLvl, "log-level", "info", "Log level: debug|info|warn|error")
	return cmd
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).With().Timestamp().Logger()
}

// buildBackends wires one HTTP runtime adapter per configured kind.
func buildBackends(cfg config.Config, log zerolog.Logger) map[types.Kind]backend.Backend {
	backends := make(map[types.Kind]backend.Backend)
	for name, bc := range cfg.Backends {
		kind, err := types.ParseKind(name)
		if err != nil {
			log.Warn().Str("kind", name).Msg("ignoring backend for unknown kind")
			continue
		}
		backends[kind] = backend.NewHTTP(backend.HTTPConfig{
			BaseURL:      bc.BaseURL,
			APIKey:       bc.APIKey,
			Model:        bc.Model,
			SystemPrompt: bc.SystemPrompt,
			ReqTimeout:   time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
			Logger:       log.With().Str("kind", string(kind)).Logger(),
		})
	}
	return backends
}

func serve(cfg config.Config) error {
	log := newLogger(cfg.LogLevel)

	client := session.NewClient(session.Config{
		Backends: buildBackends(cfg, log),
		DefaultOptions: types.Options{
			Temperature: cfg.Defaults.Temperature,
			TopK:        cfg.Defaults.TopK,
			MaxTokens:   cfg.Defaults.MaxTokens,
		},
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxWait:       time.Duration(cfg.MaxWaitSeconds) * time.Second,
		Logger:        log,
	})

	httpapi.SetLogger(log)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSAllowedOrigins,
		[]string{http.MethodGet, http.MethodPost, http.MethodDelete},
		[]string{"Content-Type", "X-User-Activation"})

	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()
	httpapi.SetBaseContext(baseCtx)

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(client)}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("genaid listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	// Cancel in-flight work, release sessions, then drain the listener.
	baseCancel()
	client.ReleaseAll()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}
