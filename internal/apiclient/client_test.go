package apiclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/assessment-wizard/internal/schemas"
	"github.com/jonathan/assessment-wizard/internal/types"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(Options{
		BaseURL:    server.URL,
		Retries:    DefaultRetries,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{BaseURL: "ftp://example.com"})
	assert.Error(t, err)

	c, err := New(Options{BaseURL: "https://api.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", c.BaseURL())
}

func TestParseDetail(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{"detail string", "application/json", `{"detail": "Resume not found"}`, "Resume not found"},
		{"detail list", "application/json", `{"detail": [{"loc": ["body", "skills"], "msg": "field required"}, {"msg": "bad level"}]}`, "skills: field required; bad level"},
		{"message", "application/json", `{"message": "quota exceeded"}`, "quota exceeded"},
		{"html page", "text/html", `<html><head><title>502 Bad Gateway</title></head></html>`, "502 Bad Gateway"},
		{"plain text", "text/plain", "  upstream   timeout ", "upstream timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseDetail(tt.contentType, []byte(tt.body)))
		})
	}
}

func TestAPIError_Message(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, `{"detail": "skills too long"}`)
	}))

	_, err := client.GenerateScenario(context.Background(), types.ScenarioRequest{Level: "mid", TestType: "behavioral"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "/generate_behavioral_questions", apiErr.Path)
	assert.Equal(t, "HTTP 422: skills too long", err.Error())
	assert.True(t, IsStatus(err, http.StatusUnprocessableEntity))
	assert.False(t, apiErr.Temporary())
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, `{"detail": "warming up"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"status": "PROCESSING"}`)
	}))

	analysis, err := client.ResumeAnalysis(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, types.AnalysisProcessing, analysis.Status)
	assert.Equal(t, "42", analysis.ResumeID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadGateway, `{"detail": "down"}`)
	}))

	_, err := client.Jobs(context.Background())
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadGateway))
	assert.Equal(t, int32(1+DefaultRetries), calls.Load())
}

func TestGet_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, `{"detail": "Resume not found"}`)
	}))

	_, err := client.ResumeAnalysis(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPost_IsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, `{"detail": "boom"}`)
	}))

	_, err := client.Evaluate(context.Background(), types.SectionAptitude, types.EvaluationRequest{
		Questions: []types.Question{{Prompt: "2+2?"}},
		Answers:   []string{"4"},
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBearerToken(t *testing.T) {
	var got atomic.Value
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, `[]`)
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	client, err := New(Options{BaseURL: server.URL, Tokens: StaticToken("stored-token")})
	require.NoError(t, err)

	_, err = client.Jobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer stored-token", got.Load())

	_, err = client.Jobs(WithToken(context.Background(), "caller-token"))
	require.NoError(t, err)
	assert.Equal(t, "Bearer caller-token", got.Load())

	scoped := client.WithTokens(StaticToken("session-token"))
	_, err = scoped.Jobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer session-token", got.Load())

	_, err = client.Jobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer stored-token", got.Load(), "copy must not change the original")
}

func TestTokenSourceError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `[]`)
	}))
	client.tokens = TokenFunc(func(context.Context) (string, error) {
		return "", errors.New("store locked")
	})
	client.retries = 0

	_, err := client.Jobs(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store locked")
}

func TestUploadResume_Multipart(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resumes", r.URL.Path)
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "cv.pdf", header.Filename)
		assert.Equal(t, "application/pdf", header.Header.Get("Content-Type"))
		assert.Equal(t, "%PDF-1.4 resume", string(data))
		writeJSON(w, http.StatusCreated, `{"id": 17, "filename": "cv.pdf", "status": "PENDING"}`)
	}))

	upload, err := client.UploadResume(context.Background(), "cv.pdf", "application/pdf", strings.NewReader("%PDF-1.4 resume"))
	require.NoError(t, err)
	assert.Equal(t, "17", upload.ID)
}

func TestUploadResume_MissingID(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"filename": "cv.pdf"}`)
	}))

	_, err := client.UploadResume(context.Background(), "cv.pdf", "application/pdf", strings.NewReader("x"))
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	var validationErr *schemas.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestGenerateAptitude(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate_aptitude", r.URL.Path)
		var req types.AptitudeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 10, req.Count)
		assert.Equal(t, []string{"Python", "React"}, req.Topics)

		questions := make([]map[string]any, req.Count)
		for i := range questions {
			questions[i] = map[string]any{"id": i + 1, "question": "Q", "options": []string{"A", "B", "C", "D"}}
		}
		body, _ := json.Marshal(map[string]any{"questions": questions})
		writeJSON(w, http.StatusOK, string(body))
	}))

	questions, err := client.GenerateAptitude(context.Background(), types.AptitudeRequest{
		Count:      10,
		Difficulty: "medium",
		Topics:     []string{"Python", "React"},
	})
	require.NoError(t, err)
	require.Len(t, questions, 10)
	assert.Equal(t, "1", questions[0].ID)
	assert.Equal(t, []string{"A", "B", "C", "D"}, questions[9].Options)
}

func TestGenerateAptitude_InvalidRequest(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("request should not be sent")
	}))
	_, err := client.GenerateAptitude(context.Background(), types.AptitudeRequest{Count: 0, Difficulty: "medium", Topics: []string{"x"}})
	assert.Error(t, err)
}

func TestGenerateScenario_SanitizesInput(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req types.ScenarioRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Python, React", req.Skills)
		assert.Equal(t, "Sr. Engineer", req.JobRole)
		writeJSON(w, http.StatusOK, `{"questions": [{"question": "Tell me about a conflict", "scenario": "team"}]}`)
	}))

	questions, err := client.GenerateScenario(context.Background(), types.ScenarioRequest{
		Skills:   "Python, <script>React</script>",
		JobRole:  "Sr. Engineer!!",
		Level:    "mid",
		TestType: "behavioral",
	})
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "team", questions[0].Scenario)
}

func TestGenerateCoding_Aliases(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"title": "Two Sum", "challenge": "Return indices", "language": "python"}`)
	}))

	q, err := client.GenerateCoding(context.Background(), types.CodingRequest{Skills: "Python", Level: "mid"})
	require.NoError(t, err)
	assert.Equal(t, "Two Sum", q.Title)
	assert.Equal(t, "Return indices", q.Text())
	assert.Equal(t, "python", q.Language)
}

func TestGenerateCoding_BodyTooLarge(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("request should not be sent")
	}))

	_, err := client.GenerateCoding(context.Background(), types.CodingRequest{
		Skills:         "Go",
		Level:          "senior",
		Company:        strings.Repeat("c", 7000),
		JobDescription: strings.Repeat("d", 9000),
	})
	assert.ErrorIs(t, err, ErrRequestTooLarge)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		kind      types.SectionKind
		path      string
		body      string
		wantError bool
	}{
		{"aptitude correct counts", types.SectionAptitude, "/evaluate_aptitude", `{"correct_answers": 7, "total_questions": 10}`, false},
		{"scenario score", types.SectionScenario, "/evaluate_behavioral", `{"score": 8, "feedback": "clear"}`, false},
		{"coding percentage", types.SectionCoding, "/evaluate_code", `{"percentage": 91.5}`, false},
		{"no score at all", types.SectionCoding, "/evaluate_code", `{"feedback": "nice"}`, true},
		{"negative max", types.SectionAptitude, "/evaluate_aptitude", `{"score": 3, "max_score": -1}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.path, r.URL.Path)
				writeJSON(w, http.StatusOK, tt.body)
			}))
			ev, err := client.Evaluate(context.Background(), tt.kind, types.EvaluationRequest{
				Questions: []types.Question{{Prompt: "q"}},
				Answers:   []string{"a"},
			})
			if tt.wantError {
				var decodeErr *DecodeError
				assert.ErrorAs(t, err, &decodeErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, ev)
		})
	}
}

func TestEvaluate_PlainTextBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "Internal processing complete")
	}))

	_, err := client.Evaluate(context.Background(), types.SectionAptitude, types.EvaluationRequest{
		Questions: []types.Question{{Prompt: "q"}},
	})
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Contains(t, err.Error(), "expected JSON")
}

func TestReplyInterview_Aliases(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantFinal bool
		wantNext  string
		wantError bool
	}{
		{"next_question", `{"next_question": "Why Go?"}`, false, "Why Go?", false},
		{"question alias", `{"question": "Why Go?", "is_final": false}`, false, "Why Go?", false},
		{"camel alias", `{"nextQuestion": "Why Go?"}`, false, "Why Go?", false},
		{"is_final", `{"is_final": true}`, true, "", false},
		{"completed", `{"completed": true, "feedback": "done"}`, true, "", false},
		{"empty reply", `{"feedback": "hmm"}`, false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req map[string]string
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "s-1", req["session_id"])
				assert.Equal(t, "I like it", req["user_response"])
				writeJSON(w, http.StatusOK, tt.body)
			}))
			reply, err := client.ReplyInterview(context.Background(), "s-1", "  I like it ")
			if tt.wantError {
				var decodeErr *DecodeError
				assert.ErrorAs(t, err, &decodeErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFinal, reply.Final)
			assert.Equal(t, tt.wantNext, reply.NextQuestion)
		})
	}
}

func TestStartInterview_RequiresSession(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"first_question": "Introduce yourself"}`)
	}))

	_, err := client.StartInterview(context.Background(), types.InterviewRequest{
		InterviewType:   "technical",
		Position:        "Backend Engineer",
		ExperienceLevel: "mid",
	})
	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestAnalyzeFrame_FlattensScores(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		raw, err := base64.StdEncoding.DecodeString(req["frame_data"])
		assert.NoError(t, err)
		assert.Equal(t, "jpeg-bytes", string(raw))
		writeJSON(w, http.StatusOK, `{
			"confidence_score": 0.82,
			"overall_score": 77,
			"eye_contact": {"score": 80},
			"posture": {"score": 70},
			"real_time_suggestions": ["Sit up straight"]
		}`)
	}))

	m, err := client.AnalyzeFrame(context.Background(), []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.InDelta(t, 82.0, m.Confidence, 0.001)
	assert.Equal(t, 77.0, m.Overall)
	assert.Equal(t, 80.0, m.EyeContact)
	assert.Equal(t, 70.0, m.Posture)
	assert.Zero(t, m.HandGestures)
	assert.Equal(t, []string{"Sit up straight"}, m.Suggestions)
}

func TestTranscribeAudio_Formats(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
		wantErr     error
	}{
		{"transcript", "application/json", `{"transcript": "hello there"}`, "hello there", nil},
		{"transcription", "application/json", `{"transcription": " hi "}`, "hi", nil},
		{"json string", "application/json", `"just text"`, "just text", nil},
		{"plain text", "text/plain", "spoken words", "spoken words", nil},
		{"empty", "application/json", `{"transcript": ""}`, "", ErrEmptyTranscript},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, header, err := r.FormFile("file")
				if assert.NoError(t, err) {
					assert.Equal(t, "answer.webm", header.Filename)
				}
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = io.WriteString(w, tt.body)
			}))
			got, err := client.TranscribeAudio(context.Background(), "answer.webm", "audio/webm", strings.NewReader("audio"))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInterviewPDF(t *testing.T) {
	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF-1.7 body"))
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"pdf": "`+pdf+`"}`)
	}))

	doc, err := client.InterviewPDF(context.Background(), types.InterviewReportRequest{SessionID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, "%PDF-1.7 body", string(doc.Data))
}

func TestDownloadReport_Binary(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-1.4")
	}))

	doc, err := client.DownloadReport(context.Background(), types.ReportRequest{})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, "%PDF-1.4", string(doc.Data))
}

func TestDownloadReport_TextField(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"report": "Overall: 83"}`)
	}))

	doc, err := client.DownloadReport(context.Background(), types.ReportRequest{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc.ContentType, "text/plain"))
	assert.Equal(t, "Overall: 83", string(doc.Data))
}

func TestCancelledContextStopsRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, `{}`)
	}))
	client.retryDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Jobs(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}
