package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jonathan/assessment-wizard/internal/apiclient"
	"github.com/jonathan/assessment-wizard/internal/assessment"
	"github.com/jonathan/assessment-wizard/internal/reports"
	"github.com/jonathan/assessment-wizard/internal/server/ratelimit"
	"github.com/jonathan/assessment-wizard/internal/store"
	"github.com/jonathan/assessment-wizard/internal/types"
	"github.com/jonathan/assessment-wizard/internal/wizard"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func ptr(v float64) *float64 { return &v }

// fakeAPI is an in-memory assessment API shared by every session of a test server.
type fakeAPI struct {
	mu      sync.Mutex
	polls   int
	replies int
}

func (f *fakeAPI) UploadResume(_ context.Context, _, _ string, r io.Reader) (*types.ResumeUpload, error) {
	_, _ = io.Copy(io.Discard, r)
	return &types.ResumeUpload{ID: "r-1"}, nil
}

func (f *fakeAPI) ResumeAnalysis(_ context.Context, id string) (*types.ResumeAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return &types.ResumeAnalysis{
		ResumeID:    id,
		Status:      types.AnalysisComplete,
		Skills:      []string{"Go", "SQL"},
		Suggestions: types.JobSuggestions{PrimaryRole: "Backend Engineer", MatchPercentage: 80},
	}, nil
}

func (f *fakeAPI) Jobs(context.Context) ([]types.Job, error) {
	return []types.Job{{ID: "1", Title: "Backend Engineer"}, {ID: "2", Title: "SRE"}}, nil
}

func questions(n int) []types.Question {
	qs := make([]types.Question, n)
	for i := range qs {
		qs[i] = types.Question{ID: fmt.Sprint(i + 1), Prompt: "Pick one", Options: []string{"A", "B"}}
	}
	return qs
}

func (f *fakeAPI) GenerateAptitude(_ context.Context, req types.AptitudeRequest) ([]types.Question, error) {
	return questions(req.Count), nil
}

func (f *fakeAPI) GenerateScenario(context.Context, types.ScenarioRequest) ([]types.Question, error) {
	return questions(3), nil
}

func (f *fakeAPI) GenerateCoding(context.Context, types.CodingRequest) (types.Question, error) {
	return types.Question{Title: "Two Sum", Description: "Return indices of two numbers adding to target."}, nil
}

func (f *fakeAPI) Evaluate(_ context.Context, kind types.SectionKind, _ types.EvaluationRequest) (*types.Evaluation, error) {
	switch kind {
	case types.SectionAptitude:
		return &types.Evaluation{Score: ptr(7)}, nil
	case types.SectionScenario:
		return &types.Evaluation{Percentage: ptr(85)}, nil
	default:
		return &types.Evaluation{Score: ptr(150)}, nil
	}
}

func (f *fakeAPI) StartInterview(context.Context, types.InterviewRequest) (*types.InterviewStart, error) {
	return &types.InterviewStart{SessionID: "iv-1", FirstQuestion: "Introduce yourself."}, nil
}

func (f *fakeAPI) ReplyInterview(context.Context, string, string) (*types.InterviewReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies++
	if f.replies == 1 {
		return &types.InterviewReply{NextQuestion: "Why Go?"}, nil
	}
	return &types.InterviewReply{Final: true}, nil
}

func (f *fakeAPI) AnalyzeFrame(context.Context, []byte) (*types.FrameMetrics, error) {
	return &types.FrameMetrics{Confidence: 90}, nil
}

func (f *fakeAPI) InterviewAnalysis(_ context.Context, id string) (*types.InterviewAnalysis, error) {
	return &types.InterviewAnalysis{SessionID: id, OverallScore: ptr(8), Summary: "Clear communicator"}, nil
}

func (f *fakeAPI) PerformanceGaps(context.Context, types.PerformanceGapsRequest) (*types.PerformanceGaps, error) {
	return &types.PerformanceGaps{AreasForImprovement: []types.Label{"Depth on databases"}}, nil
}

func (f *fakeAPI) SkillRecommendations(context.Context, types.SkillRecommendationsRequest) (*types.SkillRecommendations, error) {
	return &types.SkillRecommendations{LearningPaths: []types.Label{"PostgreSQL internals"}}, nil
}

type testServer struct {
	srv    *Server
	http   *httptest.Server
	api    *fakeAPI
	repo   *StoreSessions
	store  *store.Store
	tokens chan apiclient.TokenSource
}

func newTestServer(t *testing.T, configure func(*Options)) *testServer {
	t.Helper()
	st := store.New(store.NewMemoryBackend())
	ts := &testServer{
		api:    &fakeAPI{},
		repo:   NewStoreSessions(st),
		store:  st,
		tokens: make(chan apiclient.TokenSource, 16),
	}
	opts := Options{
		NewAPI: func(tokens apiclient.TokenSource) assessment.API {
			select {
			case ts.tokens <- tokens:
			default:
			}
			return ts.api
		},
		Sessions:      ts.repo,
		Store:         st,
		Reports:       &reports.Builder{},
		RateLimit:     &ratelimit.Config{Enabled: false},
		PollInterval:  time.Millisecond,
		FrameInterval: 5 * time.Millisecond,
	}
	if configure != nil {
		configure(&opts)
	}
	srv, err := New(opts)
	require.NoError(t, err)
	ts.srv = srv
	ts.http = httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.http.Close()
		srv.Close()
	})
	return ts
}

type call struct {
	method      string
	path        string
	token       string
	body        io.Reader
	contentType string
}

func (ts *testServer) do(t *testing.T, c call) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(c.method, ts.http.URL+c.path, c.body)
	require.NoError(t, err)
	if c.contentType != "" {
		req.Header.Set("Content-Type", c.contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := ts.http.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

// json sends v as a JSON body and expects status.
func (ts *testServer) json(t *testing.T, method, path string, v any, status int) []byte {
	t.Helper()
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	resp, data := ts.do(t, call{method: method, path: path, body: body, contentType: "application/json"})
	require.Equal(t, status, resp.StatusCode, "%s %s: %s", method, path, data)
	return data
}

func (ts *testServer) create(t *testing.T) SessionView {
	t.Helper()
	var v SessionView
	require.NoError(t, json.Unmarshal(ts.json(t, http.MethodPost, "/sessions", nil, http.StatusCreated), &v))
	return v
}

func multipartFile(t *testing.T, field, name string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// toJobs drives a new session to the jobs step.
func (ts *testServer) toJobs(t *testing.T) string {
	t.Helper()
	base := "/sessions/" + ts.create(t).ID.String()
	ts.json(t, http.MethodPost, base+"/start", nil, http.StatusOK)

	body, ct := multipartFile(t, "file", "cv.pdf", []byte("%PDF-1.4"))
	resp, data := ts.do(t, call{method: http.MethodPost, path: base + "/resume", body: body, contentType: ct})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	var analysis wizard.AnalysisPayload
	require.NoError(t, json.Unmarshal(ts.json(t, http.MethodPost, base+"/analysis/wait", nil, http.StatusOK), &analysis))
	require.Equal(t, []string{"Go", "SQL"}, analysis.Skills)
	return base
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	data := ts.json(t, http.MethodGet, "/health", nil, http.StatusOK)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
}

func TestQuickTestFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	base := ts.toJobs(t)

	var jobs struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(ts.json(t, http.MethodGet, base+"/jobs", nil, http.StatusOK), &jobs))
	assert.Equal(t, 2, jobs.Count)

	var view SessionView
	require.NoError(t, json.Unmarshal(ts.json(t, http.MethodPost, base+"/path", map[string]string{"path": "quick-test"}, http.StatusOK), &view))
	assert.Equal(t, "aptitude", view.Step)
	assert.Equal(t, "quick-test", view.Path)
	require.NotNil(t, view.State.Jobs)
	assert.Equal(t, "Backend Engineer", view.State.Jobs.SuggestedRole)

	for _, kind := range []string{"aptitude", "scenario-based", "coding"} {
		var gen struct {
			Questions []types.Question `json:"questions"`
		}
		require.NoError(t, json.Unmarshal(ts.json(t, http.MethodPost, base+"/sections/"+kind+"/generate", nil, http.StatusOK), &gen))
		require.NotEmpty(t, gen.Questions)
		for i := range gen.Questions {
			ts.json(t, http.MethodPut, fmt.Sprintf("%s/sections/%s/answers/%d", base, kind, i), map[string]string{"answer": "A"}, http.StatusNoContent)
		}
		ts.json(t, http.MethodPost, base+"/sections/"+kind+"/submit", nil, http.StatusOK)
	}

	var results wizard.ResultsPayload
	require.NoError(t, json.Unmarshal(ts.json(t, http.MethodGet, base+"/results", nil, http.StatusOK), &results))
	assert.Len(t, results.Records, 3)
	assert.Equal(t, 85.0, results.Overall)

	var steps struct {
		Steps []struct {
			From string `json:"from"`
			To   string `json:"to"`
			Op   string `json:"op"`
		} `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(ts.json(t, http.MethodGet, base+"/steps", nil, http.StatusOK), &steps))
	var to []string
	for _, s := range steps.Steps {
		to = append(to, s.To)
		assert.Equal(t, "forward", s.Op)
	}
	assert.Equal(t, []string{"upload", "analysis", "jobs", "aptitude", "scenario-based", "coding", "results"}, to)

	var list struct {
		Sessions []SessionView `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(ts.json(t, http.MethodGet, "/sessions", nil, http.StatusOK), &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "results", list.Sessions[0].Step)

	resp, data := ts.do(t, call{
		method:      http.MethodPost,
		path:        base + "/report",
		body:        strings.NewReader(`{"local":true,"html":true}`),
		contentType: "application/json",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "assessment-report.html")
	assert.Contains(t, string(data), "Depth on databases")
}

func TestBack_RecordsBackwardStep(t *testing.T) {
	ts := newTestServer(t, nil)
	base := ts.toJobs(t)
	ts.json(t, http.MethodPost, base+"/path", map[string]string{"path": "quick-test"}, http.StatusOK)

	var view SessionView
	require.NoError(t, json.Unmarshal(ts.json(t, http.MethodPost, base+"/back", nil, http.StatusOK), &view))
	assert.Equal(t, "jobs", view.Step)
	assert.Empty(t, view.Path)

	id := uuid.MustParse(strings.TrimPrefix(base, "/sessions/"))
	steps, err := ts.repo.ListSteps(context.Background(), id)
	require.NoError(t, err)
	require.NotEmpty(t, steps)
	last := steps[len(steps)-1]
	assert.Equal(t, "aptitude", last.From)
	assert.Equal(t, "back", last.Op)
}

func TestInterviewFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	base := ts.toJobs(t)
	ts.json(t, http.MethodPost, base+"/path", map[string]string{"path": "ai-interview"}, http.StatusOK)

	var start types.InterviewStart
	require.NoError(t, json.Unmarshal(ts.json(t, http.MethodPost, base+"/interview/start", nil, http.StatusOK), &start))
	assert.Equal(t, "Introduce yourself.", start.FirstQuestion)

	resp, data := ts.do(t, call{method: http.MethodPost, path: base + "/interview/frame", body: bytes.NewReader([]byte{0xff, 0xd8, 0xff}), contentType: "image/jpeg"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(data))

	var reply ReplyResponse
	require.NoError(t, json.Unmarshal(ts.json(t, http.MethodPost, base+"/interview/reply", map[string]string{"text": "I build services."}, http.StatusOK), &reply))
	require.NotNil(t, reply.Turn)
	assert.Equal(t, "Why Go?", reply.Turn.Reply.NextQuestion)

	ts.json(t, http.MethodPost, base+"/interview/reply", map[string]string{"text": ""}, http.StatusBadRequest)

	require.NoError(t, json.Unmarshal(ts.json(t, http.MethodPost, base+"/interview/reply", map[string]string{"text": "Simplicity."}, http.StatusOK), &reply))
	require.NotNil(t, reply.Turn.Completion)

	var status struct {
		Complete bool `json:"complete"`
	}
	require.NoError(t, json.Unmarshal(ts.json(t, http.MethodGet, base+"/interview", nil, http.StatusOK), &status))
	assert.True(t, status.Complete)

	ts.json(t, http.MethodPost, base+"/interview/reply", map[string]string{"text": "More."}, http.StatusConflict)
}

func TestVoiceReply_WithoutTranscriber(t *testing.T) {
	ts := newTestServer(t, nil)
	base := ts.toJobs(t)
	ts.json(t, http.MethodPost, base+"/path", map[string]string{"path": "ai-interview"}, http.StatusOK)
	ts.json(t, http.MethodPost, base+"/interview/start", nil, http.StatusOK)

	body, ct := multipartFile(t, "audio", "answer.webm", []byte("webm"))
	resp, data := ts.do(t, call{method: http.MethodPost, path: base + "/interview/reply", body: body, contentType: ct})
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	assert.Contains(t, string(data), "type your answer")
}

func TestRequestErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	base := "/sessions/" + ts.create(t).ID.String()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown session", http.MethodGet, "/sessions/" + uuid.NewString(), nil, http.StatusNotFound},
		{"malformed id", http.MethodGet, "/sessions/not-a-uuid", nil, http.StatusNotFound},
		{"generate before path", http.MethodPost, base + "/sections/aptitude/generate", nil, http.StatusConflict},
		{"unknown section", http.MethodPost, base + "/sections/essay/generate", nil, http.StatusBadRequest},
		{"bad answer index", http.MethodPut, base + "/sections/aptitude/answers/x", map[string]string{"answer": "A"}, http.StatusBadRequest},
		{"back from welcome", http.MethodPost, base + "/back", nil, http.StatusConflict},
		{"path on welcome", http.MethodPost, base + "/path", map[string]string{"path": "quick-test"}, http.StatusConflict},
		{"invalid path", http.MethodPost, base + "/path", map[string]string{"path": "essay"}, http.StatusBadRequest},
		{"results too early", http.MethodGet, base + "/results", nil, http.StatusConflict},
		{"negative limit", http.MethodGet, "/sessions?limit=-1", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := ts.json(t, tt.method, tt.path, tt.body, tt.status)
			var body map[string]string
			require.NoError(t, json.Unmarshal(data, &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestUploadResume_RejectsWrongType(t *testing.T) {
	ts := newTestServer(t, nil)
	base := "/sessions/" + ts.create(t).ID.String()
	ts.json(t, http.MethodPost, base+"/start", nil, http.StatusOK)

	body, ct := multipartFile(t, "file", "cv.txt", []byte("plain"))
	resp, data := ts.do(t, call{method: http.MethodPost, path: base + "/resume", body: body, contentType: ct})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(data), "PDF, DOC or DOCX")

	resp, _ = ts.do(t, call{method: http.MethodPost, path: base + "/resume", body: strings.NewReader("{}"), contentType: "application/json"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuth_JWTScopesSessionsToOwner(t *testing.T) {
	jwtSvc := newTestJWT("")
	ts := newTestServer(t, func(o *Options) { o.JWT = jwtSvc })
	alice, err := jwtSvc.GenerateToken("alice")
	require.NoError(t, err)
	bob, err := jwtSvc.GenerateToken("bob")
	require.NoError(t, err)

	resp, _ := ts.do(t, call{method: http.MethodPost, path: "/sessions"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, data := ts.do(t, call{method: http.MethodPost, path: "/sessions", token: alice})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	var view SessionView
	require.NoError(t, json.Unmarshal(data, &view))

	resp, _ = ts.do(t, call{method: http.MethodGet, path: "/sessions/" + view.ID.String(), token: bob})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, data = ts.do(t, call{method: http.MethodGet, path: "/sessions", token: bob})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"count":0`)

	resp, _ = ts.do(t, call{method: http.MethodGet, path: "/sessions/" + view.ID.String(), token: alice})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health needs no token")

	rec, err := ts.repo.GetSession(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.UserID)
}

func TestTokenForwardedToAPI(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, data := ts.do(t, call{method: http.MethodPost, path: "/sessions", token: "upstream-token"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	var view SessionView
	require.NoError(t, json.Unmarshal(data, &view))

	tokens := <-ts.tokens
	got, err := tokens.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "upstream-token", got)

	resp, _ = ts.do(t, call{method: http.MethodPost, path: "/sessions/" + view.ID.String() + "/start", token: "refreshed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, err = tokens.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed", got)
}

func TestSessionReloadsAfterEviction(t *testing.T) {
	for _, withStore := range []bool{true, false} {
		t.Run(fmt.Sprintf("store=%v", withStore), func(t *testing.T) {
			ts := newTestServer(t, func(o *Options) {
				if !withStore {
					o.Store = nil
				}
			})
			view := ts.create(t)
			base := "/sessions/" + view.ID.String()
			ts.json(t, http.MethodPost, base+"/start", nil, http.StatusOK)

			ts.srv.registry.remove(view.ID)

			var got SessionView
			require.NoError(t, json.Unmarshal(ts.json(t, http.MethodGet, base, nil, http.StatusOK), &got))
			assert.Equal(t, "upload", got.Step)
		})
	}
}

func TestIdleSessionsAreEvicted(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.SessionIdle = time.Hour })
	stale := ts.create(t)
	fresh := ts.create(t)
	ts.json(t, http.MethodPost, "/sessions/"+stale.ID.String()+"/start", nil, http.StatusOK)
	require.Equal(t, 2, ts.srv.registry.size())

	later := time.Now().Add(2 * time.Hour)
	ts.srv.registry.now = func() time.Time { return later }
	ts.json(t, http.MethodGet, "/sessions/"+fresh.ID.String(), nil, http.StatusOK)

	assert.Equal(t, 1, ts.srv.registry.evictIdle())
	assert.Equal(t, 1, ts.srv.registry.size())

	var got SessionView
	require.NoError(t, json.Unmarshal(ts.json(t, http.MethodGet, "/sessions/"+stale.ID.String(), nil, http.StatusOK), &got))
	assert.Equal(t, "upload", got.Step)
	assert.Equal(t, 2, ts.srv.registry.size())
	assert.Zero(t, ts.srv.registry.evictIdle())
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t, nil)
	view := ts.create(t)
	base := "/sessions/" + view.ID.String()
	ts.json(t, http.MethodPost, base+"/start", nil, http.StatusOK)

	resp, _ := ts.do(t, call{method: http.MethodDelete, path: base})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	ts.json(t, http.MethodGet, base, nil, http.StatusNotFound)

	entries, err := ts.store.WithNamespace("data/" + view.ID.String()).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(o *Options) {
		o.RateLimit = &ratelimit.Config{Enabled: true, DefaultLimit: 2, DefaultWindow: time.Hour}
	})
	for i := 0; i < 2; i++ {
		resp, _ := ts.do(t, call{method: http.MethodGet, path: "/sessions"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
	}
	resp, data := ts.do(t, call{method: http.MethodGet, path: "/sessions"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Contains(t, string(data), "rate_limit_exceeded")

	resp, _ = ts.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, _ := ts.do(t, call{method: http.MethodOptions, path: "/sessions"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestEventStream(t *testing.T) {
	ts := newTestServer(t, nil)
	view := ts.create(t)
	base := "/sessions/" + view.ID.String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.http.URL+base+"/events", nil)
	require.NoError(t, err)
	resp, err := ts.http.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	next := func() (string, string) {
		var name, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && name != "":
				return name, data
			}
		}
	}

	name, data := next()
	assert.Equal(t, "snapshot", name)
	assert.Contains(t, data, `"step":"welcome"`)

	require.Eventually(t, func() bool { return ts.srv.broker.Subscribers(view.ID.String()) == 1 }, time.Second, 5*time.Millisecond)
	ts.json(t, http.MethodPost, base+"/start", nil, http.StatusOK)

	name, data = next()
	assert.Equal(t, "step.changed", name)
	assert.Contains(t, data, `"to":"upload"`)
}
