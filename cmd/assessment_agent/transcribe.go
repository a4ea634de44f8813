package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/assessment-wizard/internal/assessment"
	"github.com/jonathan/assessment-wizard/internal/media"
	"github.com/jonathan/assessment-wizard/internal/transcribe"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <audio>",
	Short: "Transcribe a recorded answer",
	Long: `Run an audio file through the transcription chain: the assessment API,
then Gemini when GEMINI_API_KEY is set. When neither works the recording is
kept in the recordings directory for a typed answer.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

func init() {
	rootCmd.AddCommand(transcribeCmd)
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	audio, err := media.ReadAudio(args[0])
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	client, err := newClient(cfg, storeTokens(cfg, st))
	if err != nil {
		return err
	}
	gemini, err := newGemini(ctx, cfg)
	if err != nil {
		return err
	}
	if gemini != nil {
		defer func() { _ = gemini.Close() }()
	}
	transcriber, err := newTranscriber(ctx, cfg, client, gemini)
	if err != nil {
		return err
	}
	if transcriber == nil {
		return transcribe.ErrNoProvider
	}

	res, err := transcriber.Transcribe(ctx, audio)
	if err != nil {
		logger.Debug("transcription failed", zap.Error(err))
		return errors.New(assessment.UserMessage(err))
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Text)
	logger.Debug("transcribed", zap.String("provider", res.Provider))
	return nil
}
