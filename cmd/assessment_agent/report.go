package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jonathan/assessment-wizard/internal/assessment"
	"github.com/jonathan/assessment-wizard/internal/reports"
)

var (
	reportOutput  string
	reportLocal   bool
	reportHTML    bool
	reportSession string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build the report for the saved assessment",
	Long: `Build the report for a finished assessment. The assessment API report is
used when available; otherwise, or with --local, the report is rendered
locally and printed to PDF with headless Chrome.`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "assessment-report", "Output file; the extension follows the report type when omitted")
	reportCmd.Flags().BoolVar(&reportLocal, "local", false, "Render locally instead of downloading")
	reportCmd.Flags().BoolVar(&reportHTML, "html", false, "Keep a local report as HTML")
	reportCmd.Flags().StringVar(&reportSession, "session", "", "Server session id")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	client, err := newClient(cfg, storeTokens(cfg, st))
	if err != nil {
		return err
	}
	data := st
	if reportSession != "" {
		if data, err = sessionStore(st, reportSession); err != nil {
			return err
		}
	}

	gemini, err := newGemini(ctx, cfg)
	if err != nil {
		return err
	}
	if gemini != nil {
		defer func() { _ = gemini.Close() }()
	}
	archiver, err := newArchiver(ctx, cfg)
	if err != nil {
		return err
	}

	coord, err := assessment.New(assessment.Options{
		API:     client,
		Store:   data,
		Reports: newReportBuilder(client, gemini, archiver),
		Logger:  logger.Named("assessment"),
	})
	if err != nil {
		return err
	}
	defer coord.Close()

	loaded, err := coord.Load(ctx)
	if err != nil {
		return err
	}
	if !loaded {
		return errors.New("no saved assessment found")
	}

	doc, err := coord.Report(ctx, reports.Options{Local: reportLocal, HTML: reportHTML})
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	return writeReport(cmd.OutOrStdout(), doc, reportOutput)
}

// writeReport saves doc at path, adding the extension for its type when path has none.
func writeReport(out io.Writer, doc *reports.Document, path string) error {
	if filepath.Ext(path) == "" {
		path += doc.Extension()
	}
	if err := os.WriteFile(path, doc.Data, 0o600); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Report written to %s (%s)\n", path, doc.Source)
	for _, loc := range doc.Locations {
		_, _ = fmt.Fprintf(out, "Archived at %s\n", loc)
	}
	return nil
}
