package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/assessment-wizard/internal/apiclient"
	"github.com/jonathan/assessment-wizard/internal/assessment"
	"github.com/jonathan/assessment-wizard/internal/config"
	"github.com/jonathan/assessment-wizard/internal/db"
	"github.com/jonathan/assessment-wizard/internal/server"
	"github.com/jonathan/assessment-wizard/internal/store"
)

var (
	servePort   int
	sessionIdle time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP server that runs assessment sessions for browser clients.

Sessions are kept in PostgreSQL when DATABASE_URL is set and in the local
store otherwise. Bearer tokens are validated when JWT_SECRET is set.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from config, 8080)")
	serveCmd.Flags().DurationVar(&sessionIdle, "session-idle", 30*time.Minute, "Close live sessions unused for this long (0 keeps them)")
	rootCmd.AddCommand(serveCmd)
}

// backends are the session repository and payload store the server runs on.
type backends struct {
	sessions server.SessionRepository
	store    *store.Store
	close    func()
}

func openBackends(ctx context.Context, c config.Config) (*backends, error) {
	if c.DatabaseURL == "" {
		st, err := openStore(c)
		if err != nil {
			return nil, err
		}
		logger.Info("using local session store", zap.String("path", c.StorePath))
		return &backends{sessions: server.NewStoreSessions(st), store: st, close: func() { _ = st.Close() }}, nil
	}

	database, err := db.Connect(ctx, c.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	st, err := newStore(database.Entries(), c.StorePassphrase)
	if err != nil {
		database.Close()
		return nil, err
	}
	logger.Info("using PostgreSQL session store")
	return &backends{sessions: database, store: st, close: database.Close}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	port := cfg.Port
	if cmd.Flags().Changed("port") {
		port = servePort
	}

	var jwtService *server.JWTService
	jwtConfig, err := config.NewJWTConfig()
	switch {
	case errors.Is(err, config.ErrNoJWTSecret):
		logger.Warn("JWT_SECRET not set, bearer tokens are not validated")
	case err != nil:
		return err
	default:
		jwtService = server.NewJWTService(jwtConfig)
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	publisher, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	gemini, err := newGemini(ctx, cfg)
	if err != nil {
		return err
	}
	if gemini != nil {
		defer func() { _ = gemini.Close() }()
	}

	// Shared components use a token-less client; handlers attach the
	// session's token to the request context.
	shared, err := newClient(cfg, nil)
	if err != nil {
		return err
	}
	transcriber, err := newTranscriber(ctx, cfg, shared, gemini)
	if err != nil {
		return err
	}
	archiver, err := newArchiver(ctx, cfg)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		Addr: fmt.Sprintf(":%d", port),
		NewAPI: func(tokens apiclient.TokenSource) assessment.API {
			return shared.WithTokens(tokens)
		},
		Sessions:      b.sessions,
		Store:         b.store,
		Events:        publisher,
		Reports:       newReportBuilder(shared, gemini, archiver),
		Transcriber:   transcriber,
		Defaults:      assessment.DefaultDefaults(),
		JWT:           jwtService,
		PollInterval:  assessment.DefaultPollInterval,
		FrameInterval: time.Second,
		SessionIdle:   sessionIdle,
		Logger:        logger.Named("server"),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("starting server", zap.Int("port", port), zap.String("api", shared.BaseURL()))
	return srv.Run(ctx)
}
