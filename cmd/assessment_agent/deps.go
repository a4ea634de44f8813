package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/assessment-wizard/internal/apiclient"
	"github.com/jonathan/assessment-wizard/internal/config"
	"github.com/jonathan/assessment-wizard/internal/events"
	"github.com/jonathan/assessment-wizard/internal/interview"
	"github.com/jonathan/assessment-wizard/internal/llm"
	"github.com/jonathan/assessment-wizard/internal/reports"
	"github.com/jonathan/assessment-wizard/internal/store"
	"github.com/jonathan/assessment-wizard/internal/transcribe"
)

// openStore opens the local SQLite store, sealing secrets when a passphrase is set.
func openStore(c config.Config) (*store.Store, error) {
	backend, err := store.OpenSQLite(c.StorePath)
	if err != nil {
		return nil, err
	}
	return newStore(backend, c.StorePassphrase)
}

func newStore(backend store.Backend, passphrase string) (*store.Store, error) {
	var opts []store.Option
	if passphrase != "" {
		sealer, err := store.NewSealer(passphrase)
		if err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("failed to create store sealer: %w", err)
		}
		opts = append(opts, store.WithSealer(sealer))
	}
	return store.New(backend, opts...), nil
}

// storeTokens prefers the configured token and falls back to the one saved in st.
func storeTokens(c config.Config, st *store.Store) apiclient.TokenSource {
	if c.APIToken != "" {
		return apiclient.StaticToken(c.APIToken)
	}
	if st == nil {
		return nil
	}
	return apiclient.TokenFunc(st.Token)
}

func newClient(c config.Config, tokens apiclient.TokenSource) (*apiclient.Client, error) {
	return apiclient.New(apiclient.Options{
		BaseURL: c.APIBaseURL,
		Retries: c.Retries,
		Timeout: time.Duration(c.TimeoutSeconds) * time.Second,
		Tokens:  tokens,
		Logger:  logger.Named("api"),
	})
}

// newGemini returns a Gemini client, or nil when no API key is configured.
func newGemini(ctx context.Context, c config.Config) (*llm.GeminiClient, error) {
	if c.GeminiAPIKey == "" {
		return nil, nil
	}
	return llm.NewGeminiClient(ctx, llm.DefaultConfig(), c.GeminiAPIKey)
}

// llmClient converts an optional Gemini client to the interface without a typed nil.
func llmClient(g *llm.GeminiClient) llm.Client {
	if g == nil {
		return nil
	}
	return g
}

// newTranscriber builds the transcription chain: the API endpoint, then
// Gemini, then saving the recording for typed input. It returns nil when no
// provider is usable.
func newTranscriber(ctx context.Context, c config.Config, api transcribe.AudioAPI, gemini *llm.GeminiClient) (interview.Transcriber, error) {
	chain, err := transcribe.NewChain(ctx, logger.Named("transcribe"),
		transcribe.ServerProvider{API: api},
		transcribe.GeminiProvider{Client: llmClient(gemini)},
		transcribe.ManualProvider{Dir: c.RecordingsDir},
	)
	if errors.Is(err, transcribe.ErrNoProvider) {
		logger.Warn("voice answers disabled", zap.Error(err))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("transcription chain ready", zap.Strings("providers", chain.Providers()))
	return chain, nil
}

// newArchiver returns the configured report archive: an S3 or R2 bucket, a
// local directory, or nil.
func newArchiver(ctx context.Context, c config.Config) (reports.Archiver, error) {
	switch {
	case c.ReportBucket != "":
		a, err := reports.NewS3Archiver(ctx, reports.S3Config{
			Bucket:    c.ReportBucket,
			Prefix:    os.Getenv("REPORT_PREFIX"),
			Region:    os.Getenv("AWS_REGION"),
			AccountID: c.R2AccountID,
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("R2_ACCESS_KEY_ID"),
			SecretKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create report archive: %w", err)
		}
		return a, nil
	case c.ReportDir != "":
		return reports.DirArchiver{Dir: c.ReportDir}, nil
	}
	return nil, nil
}

func newReportBuilder(remote reports.RemoteAPI, gemini *llm.GeminiClient, archiver reports.Archiver) *reports.Builder {
	return &reports.Builder{
		Remote:     remote,
		Printer:    reports.ChromePrinter{},
		Summarizer: llmClient(gemini),
		Archiver:   archiver,
		Logger:     logger.Named("reports"),
	}
}

// newPublisher returns the RabbitMQ publisher when RABBITMQ_URL is set, and
// a logging publisher otherwise.
func newPublisher(c config.Config) (events.Publisher, error) {
	if c.RabbitMQURL == "" {
		return events.LogPublisher{Logger: logger.Named("events")}, nil
	}
	p, err := events.DialAMQP(c.RabbitMQURL, events.DefaultExchange)
	if err != nil {
		return nil, err
	}
	logger.Info("publishing events to RabbitMQ", zap.String("exchange", events.DefaultExchange))
	return p, nil
}
