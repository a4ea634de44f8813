package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/assessment-wizard/internal/assessment"
	"github.com/jonathan/assessment-wizard/internal/db"
	"github.com/jonathan/assessment-wizard/internal/interview"
	"github.com/jonathan/assessment-wizard/internal/media"
	"github.com/jonathan/assessment-wizard/internal/reports"
	"github.com/jonathan/assessment-wizard/internal/server/middleware"
	"github.com/jonathan/assessment-wizard/internal/types"
	"github.com/jonathan/assessment-wizard/internal/wizard"
)

const (
	// maxJSONBody caps JSON request bodies.
	maxJSONBody = 1 << 20
	// maxFrameBody caps a single uploaded camera frame.
	maxFrameBody = 4 << 20
	// maxAudioBody caps a recorded answer upload.
	maxAudioBody = 25 << 20
)

// SessionView is the JSON form of a session.
type SessionView struct {
	ID        uuid.UUID    `json:"id"`
	Step      string       `json:"step"`
	Path      string       `json:"path,omitempty"`
	Busy      bool         `json:"busy"`
	Revision  int64        `json:"revision"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	State     wizard.State `json:"state"`
}

func (s *Server) view(sess *session) SessionView {
	sess.mu.Lock()
	rec := *sess.record
	sess.mu.Unlock()
	state := sess.coord.Snapshot()
	return SessionView{
		ID:        rec.ID,
		Step:      string(state.Step),
		Path:      string(state.Path),
		Busy:      sess.coord.Busy(),
		Revision:  rec.Revision,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		State:     state,
	}
}

// caller returns the authenticated user, empty when auth is disabled, and
// the bearer token to forward.
func caller(r *http.Request) (owner, token string) {
	owner, _ = middleware.GetUserID(r)
	return owner, middleware.Token(r.Context())
}

// session resolves the {id} path value, writing the error response on failure.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, ErrSessionNotFound)
		return nil, false
	}
	owner, token := caller(r)
	sess, err := s.registry.get(r.Context(), id, owner, token)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return sess, true
}

// decodeJSON decodes an optional JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &ErrValidation{Field: "body", Message: "invalid JSON"}
	}
	return nil
}

func sectionKind(r *http.Request) (types.SectionKind, error) {
	kind, err := types.ParseSectionKind(r.PathValue("kind"))
	if err != nil {
		return "", &ErrValidation{Field: "kind", Message: err.Error()}
	}
	return kind, nil
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	owner, token := caller(r)
	sess, err := s.registry.create(r.Context(), owner, token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, s.view(sess))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	owner, _ := caller(r)
	limit := db.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.fail(w, r, &ErrValidation{Field: "limit", Message: "must be a positive integer"})
			return
		}
		limit = n
	}
	recs, err := s.sessions.ListSessions(r.Context(), owner, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]SessionView, 0, len(recs))
	for _, rec := range recs {
		v := SessionView{
			ID:        rec.ID,
			Step:      rec.Step,
			Path:      rec.Path,
			Revision:  rec.Revision,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		}
		if len(rec.State) > 0 {
			_ = json.Unmarshal(rec.State, &v.State)
		}
		out = append(out, v)
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"sessions": out, "count": len(out)})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, s.view(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id := sess.record.ID
	s.registry.remove(id)
	if err := s.sessions.DeleteSession(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	if s.store != nil {
		data := s.store.WithNamespace(SessionNamespace(id))
		if entries, err := data.List(r.Context()); err == nil {
			for _, e := range entries {
				_ = data.Delete(r.Context(), e.Key)
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSteps(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	steps, err := s.sessions.ListSteps(r.Context(), sess.record.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"steps": steps, "count": len(steps)})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.coord.Start(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.view(sess))
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if _, err := sess.coord.Back(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.view(sess))
}

func (s *Server) handleUploadResume(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, assessment.MaxResumeSize+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, r, fmt.Errorf("%w: file exceeds 10 MB", assessment.ErrInvalidFile))
			return
		}
		s.fail(w, r, &ErrValidation{Field: "file", Message: "a multipart file field is required"})
		return
	}
	defer func() { _ = file.Close() }()

	if err := assessment.ValidateResume(header.Filename, header.Header.Get("Content-Type"), header.Size); err != nil {
		s.fail(w, r, err)
		return
	}
	payload, err := sess.coord.UploadResume(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, payload)
}

func (s *Server) handleAwaitAnalysis(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	payload, err := sess.coord.AwaitAnalysis(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, payload)
}

func (s *Server) handleSkipAnalysis(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.coord.SkipAnalysis(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.view(sess))
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	jobs, err := sess.coord.Jobs(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// SelectPathRequest chooses the assessment path on the jobs step.
type SelectPathRequest struct {
	Path string `json:"path"`
	wizard.JobsPayload
}

func (s *Server) handleSelectPath(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req SelectPathRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	path, err := wizard.ParsePath(req.Path)
	if err != nil || path == wizard.PathUnset {
		s.fail(w, r, &ErrValidation{Field: "path", Message: "must be quick-test or ai-interview"})
		return
	}
	if err := sess.coord.SelectPath(r.Context(), path, req.JobsPayload); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.view(sess))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	kind, err := sectionKind(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	questions, err := sess.coord.Generate(r.Context(), kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"kind": kind, "questions": questions})
}

func (s *Server) handleSection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	section, ok := sess.coord.Section()
	if !ok {
		s.fail(w, r, wizard.ErrQuestionsMissing)
		return
	}
	s.jsonResponse(w, http.StatusOK, section)
}

// AnswerRequest records one answer.
type AnswerRequest struct {
	Answer string `json:"answer"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	kind, err := sectionKind(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.fail(w, r, &ErrValidation{Field: "index", Message: "must be an integer"})
		return
	}
	var req AnswerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := sess.coord.Answer(kind, index, req.Answer); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	kind, err := sectionKind(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := sess.coord.Submit(r.Context(), kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"result": result, "step": sess.coord.Current()})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	results, err := sess.coord.Results()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, results)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	insights, err := sess.coord.Insights(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, insights)
}

func (s *Server) handleStartInterview(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	start, err := sess.coord.StartInterview(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, start)
}

// ReplyRequest is a typed interview answer.
type ReplyRequest struct {
	Text string `json:"text"`
}

// ReplyResponse is the outcome of one interview answer.
type ReplyResponse struct {
	Transcript string          `json:"transcript,omitempty"`
	Provider   string          `json:"provider,omitempty"`
	Turn       *interview.Turn `json:"turn"`
}

// handleReply accepts a typed answer as JSON or a recorded one as a
// multipart "audio" file, which is transcribed before it is sent. After the
// final turn it only completes the closing analysis and ignores the body.
func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if sess.coord.InterviewFinished() {
		turn, err := sess.coord.FinishInterview(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, ReplyResponse{Turn: turn})
		return
	}

	var resp ReplyResponse
	var text string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		r.Body = http.MaxBytesReader(w, r.Body, maxAudioBody)
		file, header, err := r.FormFile("audio")
		if err != nil {
			s.fail(w, r, &ErrValidation{Field: "audio", Message: "a multipart audio field is required"})
			return
		}
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			s.fail(w, r, &ErrValidation{Field: "audio", Message: "failed to read upload"})
			return
		}
		audio := media.Audio{FileName: header.Filename, ContentType: header.Header.Get("Content-Type"), Data: data}
		if err := sess.coord.PushAudio(audio); err != nil {
			s.fail(w, r, err)
			return
		}
		res, err := sess.coord.Listen(sess.forward(r.Context()))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		text, resp.Transcript, resp.Provider = res.Text, res.Text, res.Provider
	} else {
		var req ReplyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		text = req.Text
	}

	turn, err := sess.coord.Reply(r.Context(), text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp.Turn = turn
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleFrame accepts one JPEG camera frame and returns the latest metrics.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBody))
	if err != nil {
		s.fail(w, r, &ErrValidation{Field: "body", Message: "frame too large"})
		return
	}
	if err := sess.coord.PushFrame(data); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, map[string]any{"metrics": sess.coord.InterviewMetrics()})
}

func (s *Server) handleInterviewStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	completion, done := sess.coord.Completion()
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"complete":   done,
		"completion": completion,
		"metrics":    sess.coord.InterviewMetrics(),
	})
}

// ReportRequest selects how the report is produced.
type ReportRequest struct {
	Local bool `json:"local"`
	HTML  bool `json:"html"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req ReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	doc, err := sess.coord.Report(sess.forward(r.Context()), reports.Options{Local: req.Local, HTML: req.HTML})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="assessment-report%s"`, doc.Extension()))
	w.Header().Set("X-Report-Source", doc.Source)
	if len(doc.Locations) > 0 {
		w.Header().Set("X-Report-Locations", strings.Join(doc.Locations, ","))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}
