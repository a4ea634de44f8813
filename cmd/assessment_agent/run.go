package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/assessment-wizard/internal/assessment"
	"github.com/jonathan/assessment-wizard/internal/fetch"
	"github.com/jonathan/assessment-wizard/internal/interview"
	"github.com/jonathan/assessment-wizard/internal/media"
	"github.com/jonathan/assessment-wizard/internal/observability"
	"github.com/jonathan/assessment-wizard/internal/reports"
	"github.com/jonathan/assessment-wizard/internal/types"
	"github.com/jonathan/assessment-wizard/internal/wizard"
)

var (
	runResume     string
	runPath       string
	runRole       string
	runJobURL     string
	runFrames     string
	runAudio      []string
	runReportPath string
	runLocal      bool
	runHTML       bool
	runContinue   bool
	runNoBrowser  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Take the assessment on the terminal",
	Long: `Walk through the assessment interactively: upload a resume, review the
analysis and job suggestions, then take the quick test or the AI interview.

Interview answers are typed unless --audio files are given, in which case each
file is transcribed in turn. --frames replays JPEG frames as the camera.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runResume, "resume", "r", "", "Resume file (PDF, DOC or DOCX)")
	runCmd.Flags().StringVar(&runPath, "path", "", "Assessment path: quick-test or ai-interview")
	runCmd.Flags().StringVar(&runRole, "role", "", "Target job role")
	runCmd.Flags().StringVar(&runJobURL, "job-url", "", "Job posting URL used as the job description")
	runCmd.Flags().BoolVar(&runNoBrowser, "no-browser", false, "Do not render client-side job pages in headless Chrome")
	runCmd.Flags().StringVar(&runFrames, "frames", "", "Directory of JPEG frames replayed as the camera")
	runCmd.Flags().StringSliceVar(&runAudio, "audio", nil, "Audio files answering the interview questions in order")
	runCmd.Flags().StringVarP(&runReportPath, "report", "o", "", "Write the final report to this file")
	runCmd.Flags().BoolVar(&runLocal, "local-report", false, "Render the report locally instead of downloading it")
	runCmd.Flags().BoolVar(&runHTML, "html", false, "Keep a local report as HTML")
	runCmd.Flags().BoolVar(&runContinue, "continue", false, "Resume the assessment saved in the local store")
	rootCmd.AddCommand(runCmd)
}

// runOptions are the answers supplied up front instead of prompted for.
type runOptions struct {
	ResumePath     string
	Path           wizard.Path
	Role           string
	JobDescription string
	Voice          bool
	ReportPath     string
	Report         reports.Options
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := cfg.Path
	if cmd.Flags().Changed("path") {
		path = runPath
	}
	parsedPath, err := wizard.ParsePath(path)
	if err != nil && path != "" {
		return err
	}
	role := cfg.Role
	if cmd.Flags().Changed("role") {
		role = runRole
	}

	opts := runOptions{
		ResumePath: runResume,
		Path:       parsedPath,
		Role:       role,
		Voice:      len(runAudio) > 0,
		ReportPath: runReportPath,
		Report:     reports.Options{Local: runLocal, HTML: runHTML},
	}
	if runJobURL != "" {
		var renderer fetch.Renderer
		if !runNoBrowser {
			renderer = fetch.ChromeRenderer{Logger: logger.Named("fetch")}
		}
		text, err := fetch.Posting(ctx, runJobURL, nil, renderer)
		if err != nil {
			return fmt.Errorf("failed to fetch job posting: %w", err)
		}
		opts.JobDescription = text
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
	var transcriber interview.Transcriber
	if opts.Voice {
		if transcriber, err = newTranscriber(ctx, cfg, client, gemini); err != nil {
			return err
		}
		opts.Voice = transcriber != nil
	}
	archiver, err := newArchiver(ctx, cfg)
	if err != nil {
		return err
	}

	device := media.FileDevice{FramesDir: runFrames, AudioFiles: runAudio}
	coord, err := assessment.New(assessment.Options{
		API:         client,
		Store:       st,
		Events:      publisher,
		Devices:     func() media.Device { return device },
		Transcriber: transcriber,
		Reports:     newReportBuilder(client, gemini, archiver),
		Defaults:    assessment.DefaultDefaults(),
		Logger:      logger.Named("assessment"),
	})
	if err != nil {
		return err
	}
	defer coord.Close()

	if runContinue {
		loaded, err := coord.Load(ctx)
		if err != nil {
			return err
		}
		if !loaded {
			return errors.New("no saved assessment found in the local store")
		}
	}

	r := newRunner(coord, newConsole(cmd.InOrStdin(), cmd.OutOrStdout()), opts)
	err = r.run(ctx)
	if errors.Is(err, errQuit) {
		r.con.say("Progress saved. Run again with --continue to pick up where you left off.")
		return nil
	}
	return err
}

// runner drives a coordinator from the terminal.
type runner struct {
	coord *assessment.Coordinator
	con   *console
	print *observability.Printer
	opts  runOptions
}

func newRunner(coord *assessment.Coordinator, con *console, opts runOptions) *runner {
	return &runner{coord: coord, con: con, print: observability.NewPrinter(con.out), opts: opts}
}

// run advances the wizard until results or a finished interview, then
// writes the report when one was requested.
func (r *runner) run(ctx context.Context) error {
	var shown wizard.Step
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := r.coord.Current()
		if step != shown {
			r.print.PrintStep(r.coord.Snapshot())
			shown = step
		}

		var done bool
		var err error
		switch step {
		case wizard.StepWelcome:
			err = r.coord.Start(ctx)
		case wizard.StepUpload:
			err = r.upload(ctx)
		case wizard.StepAnalysis:
			err = r.analysis(ctx)
		case wizard.StepJobs:
			err = r.jobs(ctx)
		case wizard.StepAptitude, wizard.StepScenario, wizard.StepCoding:
			err = r.section(ctx, step)
		case wizard.StepResults:
			r.results(ctx)
			done = true
		case wizard.StepInterview:
			done, err = r.interview(ctx)
		default:
			return fmt.Errorf("unknown step %q", step)
		}

		if err != nil {
			if errors.Is(err, errQuit) || ctx.Err() != nil {
				return err
			}
			logger.Debug("step failed", zap.String("step", string(step)), zap.Error(err))
			r.con.say("%s", assessment.UserMessage(err))
			retry, cerr := r.con.confirm("Try again?")
			if cerr != nil {
				return cerr
			}
			if !retry {
				return err
			}
			continue
		}
		if done {
			return r.report(ctx)
		}
	}
}

func (r *runner) upload(ctx context.Context) error {
	path := r.opts.ResumePath
	r.opts.ResumePath = ""
	if path == "" {
		var err error
		if path, err = r.con.ask("Resume file (PDF, DOC or DOCX)"); err != nil {
			return err
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", assessment.ErrInvalidFile, err)
	}
	defer func() { _ = f.Close() }()

	upload, err := r.coord.UploadResume(ctx, filepath.Base(path), mime.TypeByExtension(filepath.Ext(path)), f)
	if err != nil {
		return err
	}
	r.con.say("Uploaded %s (%d bytes). Analyzing...", upload.FileName, upload.Size)
	return nil
}

func (r *runner) analysis(ctx context.Context) error {
	a, err := r.coord.AwaitAnalysis(ctx)
	if err == nil {
		r.print.PrintAnalysis(a)
		return nil
	}
	if errors.Is(err, assessment.ErrBusy) || ctx.Err() != nil {
		return err
	}
	r.con.say("%s", assessment.UserMessage(err))
	skip, cerr := r.con.confirm("Continue without the resume analysis?")
	if cerr != nil {
		return cerr
	}
	if !skip {
		return err
	}
	return r.coord.SkipAnalysis(ctx)
}

var pathNames = []string{string(wizard.PathQuickTest), string(wizard.PathAIInterview)}

func (r *runner) jobs(ctx context.Context) error {
	jobs, err := r.coord.Jobs(ctx)
	if err != nil {
		logger.Warn("job suggestions unavailable", zap.Error(err))
		r.con.say("Job suggestions are unavailable: %s", assessment.UserMessage(err))
	} else {
		r.print.PrintJobs(jobs)
	}

	payload := wizard.JobsPayload{SuggestedRole: r.opts.Role, JobDescription: r.opts.JobDescription}
	if a := r.coord.Snapshot().Analysis; a != nil {
		payload.AdditionalRoles = a.Suggestions.AdditionalRoles
		payload.MatchPercentage = a.Suggestions.MatchPercentage
		if payload.SuggestedRole == "" {
			payload.SuggestedRole = a.Suggestions.PrimaryRole
		}
	}
	if payload.SuggestedRole == "" {
		if payload.SuggestedRole, err = r.con.ask("Target role (blank for " + assessment.DefaultRole + ")"); err != nil {
			return err
		}
	}

	path := r.opts.Path
	if path == wizard.PathUnset {
		r.con.say("1) Quick test: aptitude, scenario and coding sections")
		r.con.say("2) AI interview: a spoken interview with live feedback")
		i, err := r.con.choose("Choose a path", pathNames)
		if err != nil {
			return err
		}
		path = wizard.Path(pathNames[i])
	}
	return r.coord.SelectPath(ctx, path, payload)
}

func (r *runner) section(ctx context.Context, step wizard.Step) error {
	kind, _ := step.Section()
	sec, ok := r.coord.Section()
	if !ok || sec.Kind != kind || len(sec.Questions) == 0 {
		r.con.say("Generating the %s...", kind.Title())
		if _, err := r.coord.Generate(ctx, kind); err != nil {
			return err
		}
		sec, _ = r.coord.Section()
	}

	for i, q := range sec.Questions {
		if i < len(sec.Answers) && strings.TrimSpace(sec.Answers[i]) != "" {
			continue
		}
		r.print.PrintQuestion(i+1, len(sec.Questions), q)
		var answer string
		var err error
		if kind == types.SectionCoding {
			answer, err = r.con.askBlock("Your solution")
		} else {
			answer, err = r.con.ask("Your answer")
		}
		if err != nil {
			return err
		}
		if err := r.coord.Answer(kind, i, answer); err != nil {
			return err
		}
	}

	result, err := r.coord.Submit(ctx, kind)
	if err != nil {
		return err
	}
	r.print.PrintResult(result)
	return nil
}

// results prints the scores and insights. Insight failures are shown but do
// not fail the run.
func (r *runner) results(ctx context.Context) {
	res, err := r.coord.Results()
	if err != nil {
		r.con.say("%s", assessment.UserMessage(err))
		return
	}
	r.print.PrintResults(res)

	insights, err := r.coord.Insights(ctx)
	if err != nil {
		logger.Warn("insights unavailable", zap.Error(err))
		return
	}
	r.print.PrintInsights(insights.Gaps, insights.Recommendations)
}

// interview runs the question and answer loop. It reports done once the
// final analysis is in.
func (r *runner) interview(ctx context.Context) (bool, error) {
	if c, ok := r.coord.Completion(); ok {
		r.print.PrintCompletion(c)
		return true, nil
	}
	if iv := r.coord.Snapshot().Interview; iv != nil && iv.Final {
		r.con.say("The interview is already complete.")
		return true, nil
	}

	if iv := r.coord.Snapshot().Interview; iv == nil || iv.SessionID == "" {
		start, err := r.coord.StartInterview(ctx)
		if err != nil {
			return false, err
		}
		r.print.PrintTurn(types.Turn{Type: types.TurnQuestion, Content: start.FirstQuestion})
	}

	for {
		var turn *interview.Turn
		var err error
		if r.coord.InterviewFinished() {
			turn, err = r.coord.FinishInterview(ctx)
		} else {
			var text string
			if text, err = r.answer(ctx); err != nil {
				return false, err
			}
			turn, err = r.coord.Reply(ctx, text)
		}
		switch {
		case errors.Is(err, interview.ErrEmptyAnswer):
			r.con.say("%s", assessment.UserMessage(err))
			continue
		case errors.Is(err, wizard.ErrNoSession):
			r.con.say("A saved interview cannot continue after a restart. Returning to the path choice.")
			_, err = r.coord.Back(ctx)
			return false, err
		case err != nil:
			return false, err
		}

		if turn.Completion != nil {
			r.print.PrintCompletion(turn.Completion)
			return true, nil
		}
		if fb := turn.Reply.RealTimeFeedback; fb != "" {
			r.con.say("Feedback: %s", fb)
		}
		r.print.PrintTurn(types.Turn{Type: types.TurnQuestion, Content: turn.Reply.NextQuestion})
	}
}

// answer records and transcribes the next answer when voice input is on,
// and asks for typed input otherwise or when transcription gives up.
func (r *runner) answer(ctx context.Context) (string, error) {
	if r.opts.Voice {
		res, err := r.coord.Listen(ctx)
		if err == nil {
			r.print.PrintTurn(types.Turn{Type: types.TurnResponse, Content: res.Text})
			return res.Text, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		if errors.Is(err, media.ErrNoAudio) {
			r.opts.Voice = false
		} else {
			r.con.say("%s", assessment.UserMessage(err))
		}
	}
	return r.con.ask("Your answer")
}

func (r *runner) report(ctx context.Context) error {
	if r.opts.ReportPath == "" {
		return nil
	}
	doc, err := r.coord.Report(ctx, r.opts.Report)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	return writeReport(r.con.out, doc, r.opts.ReportPath)
}
