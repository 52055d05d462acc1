package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/storyforge-api/internal/checkpoint"
	"github.com/maauso/storyforge-api/internal/format"
	"github.com/maauso/storyforge-api/internal/pipeline"
	"github.com/maauso/storyforge-api/internal/render"
	"github.com/maauso/storyforge-api/internal/session"
)

// stubPipeline acknowledges documentary requests without real vendors.
type stubPipeline struct {
	executed atomic.Int64
	done     chan pipeline.Request
}

func (p *stubPipeline) FormatID() string { return "documentary" }

func (p *stubPipeline) Validate(req pipeline.Request) error {
	if strings.TrimSpace(req.Idea) == "" {
		return pipeline.ErrIdeaRequired
	}
	return nil
}

func (p *stubPipeline) Execute(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	p.executed.Add(1)
	if p.done != nil {
		p.done <- req
	}
	return &pipeline.Result{Success: true, SessionID: req.ProjectID}, nil
}

// stubEncoder completes render jobs immediately.
type stubEncoder struct{}

func (stubEncoder) Process(_ context.Context, job *render.Job, progress render.ProgressFunc) (string, error) {
	progress(100, job.Frames.TotalFrames)
	return "/tmp/" + job.ID + ".mp4", nil
}

type fixture struct {
	handler     http.Handler
	pipeline    *stubPipeline
	checkpoints *checkpoint.Manager
	sessions    session.Store
	renders     *render.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	registry := format.NewDefaultRegistry()
	router := pipeline.NewRouter(registry, nil)
	stub := &stubPipeline{done: make(chan pipeline.Request, 8)}
	router.Register(stub)

	checkpoints := checkpoint.NewManager(nil)
	sessions := session.NewMemoryStore()
	renders := render.NewManager(nil, stubEncoder{}, render.Options{}, nil)
	t.Cleanup(renders.Close)

	h := NewHandlers(router, registry, checkpoints, sessions, renders, nil)
	return &fixture{
		handler:     NewRouter(h, nil, DefaultConfig()),
		pipeline:    stub,
		checkpoints: checkpoints,
		sessions:    sessions,
		renders:     renders,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestCreateProduction_Accepted(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/productions", ProductionRequest{
		FormatID: "documentary",
		Idea:     "The fall of the Roman Empire",
		Genre:    "History",
		Language: "en",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted ProductionAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.NotEmpty(t, accepted.SessionID)

	select {
	case req := <-f.pipeline.done:
		assert.Equal(t, accepted.SessionID, req.ProjectID)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline never executed in background")
	}
}

func TestCreateProduction_Rejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{
			name:   "missing idea",
			body:   ProductionRequest{FormatID: "documentary"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "unknown format",
			body:   ProductionRequest{FormatID: "podcast", Idea: "x"},
			status: http.StatusNotFound,
			code:   "FORMAT_NOT_FOUND",
		},
		{
			name:   "format without pipeline",
			body:   ProductionRequest{FormatID: "shorts", Idea: "x"},
			status: http.StatusNotFound,
			code:   "PIPELINE_NOT_FOUND",
		},
		{
			name:   "unsupported language",
			body:   ProductionRequest{FormatID: "documentary", Idea: "x", Language: "fr"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_FAILED",
		},
		{
			name:   "whitespace idea",
			body:   ProductionRequest{FormatID: "documentary", Idea: "   "},
			status: http.StatusBadRequest,
			code:   "VALIDATION_FAILED",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/productions", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
	assert.Zero(t, f.pipeline.executed.Load(), "rejected requests must not execute")
}

func TestCreateProduction_InvalidJSON(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/productions", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", errorCode(t, rec))
}

func TestListFormats(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/formats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var formats []FormatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &formats))
	assert.Len(t, formats, 8)
}

func TestFormatGenres(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/formats/documentary/genres", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var genres GenresResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &genres))
	assert.Contains(t, genres.Genres, "History")

	rec = f.do(t, http.MethodGet, "/formats/podcast/genres", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckpointLifecycle(t *testing.T) {
	f := newFixture(t)

	go func() {
		_, _ = f.checkpoints.Create(context.Background(), "script-review", nil, time.Minute)
	}()

	var id string
	require.Eventually(t, func() bool {
		for _, cp := range f.checkpoints.All() {
			if cp.Status == checkpoint.StatusPending {
				id = cp.ID
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "checkpoint never registered")

	rec := f.do(t, http.MethodGet, "/checkpoints", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "script-review")

	rec = f.do(t, http.MethodPost, "/checkpoints/"+id+"/approve", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Resolution is write-once.
	rec = f.do(t, http.MethodPost, "/checkpoints/"+id+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/checkpoints/missing/approve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckpointChanges_RequireFeedback(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/checkpoints/any/changes", ChangeRequestBody{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}

func TestGetSession(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sessions.Save(context.Background(), &session.State{
		ID:    "session-1",
		Topic: "volcanoes",
	}))

	rec := f.do(t, http.MethodGet, "/sessions/session-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "volcanoes")

	rec = f.do(t, http.MethodGet, "/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", errorCode(t, rec))
}

func TestRenderJobLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/render-jobs", CreateRenderJobRequest{
		SessionID:   "session-1",
		TotalFrames: 10,
		FPS:         30,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var job RenderJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "pending", job.Status)

	rec = f.do(t, http.MethodPost, "/render-jobs/"+job.ID+"/frames", RegisterFramesRequest{Count: 10})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "uploading", job.Status)
	assert.Equal(t, 10, job.ReceivedFrames)

	rec = f.do(t, http.MethodPost, "/render-jobs/"+job.ID+"/queue", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/render-jobs/"+job.ID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		var got RenderJobResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			return false
		}
		return got.Status == "complete"
	}, 3*time.Second, 5*time.Millisecond, "job never completed")

	rec = f.do(t, http.MethodGet, "/render-jobs/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats render.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Complete)

	// Frames after completion hit a terminal state machine.
	rec = f.do(t, http.MethodPost, "/render-jobs/"+job.ID+"/frames", RegisterFramesRequest{Count: 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(t, rec))
}

func TestRenderJob_NotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/render-jobs/render-0-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JOB_NOT_FOUND", errorCode(t, rec))
}

func TestRenderJobEvents_StreamsUntilTerminal(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	job, err := f.renders.CreateJob("session-1", render.Config{TotalFrames: 4})
	require.NoError(t, err)
	require.NoError(t, f.renders.RegisterFrames(job.ID, 4, nil))
	require.NoError(t, f.renders.QueueJob(job.ID))

	resp, err := http.Get(srv.URL + "/render-jobs/" + job.ID + "/events")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The stream ends at the terminal snapshot; the last event is complete.
	var last string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
			last = strings.TrimPrefix(line, "data: ")
		}
	}
	require.NotEmpty(t, last)
	var got RenderJobResponse
	require.NoError(t, json.Unmarshal([]byte(last), &got))
	assert.Equal(t, "complete", got.Status)
}

// gatedEncoder holds a render job in encoding until released.
type gatedEncoder struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedEncoder) Process(_ context.Context, job *render.Job, _ render.ProgressFunc) (string, error) {
	close(g.started)
	<-g.release
	return "/tmp/" + job.ID + ".mp4", nil
}

// blockedWriter is an event-stream sink whose first Write blocks until
// the test releases it, so the subscriber buffer can be overfilled.
type blockedWriter struct {
	header  http.Header
	writing chan struct{}
	release chan struct{}
	once    sync.Once

	mu  sync.Mutex
	buf bytes.Buffer
}

func newBlockedWriter() *blockedWriter {
	return &blockedWriter{
		header:  make(http.Header),
		writing: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockedWriter) Header() http.Header { return b.header }
func (b *blockedWriter) WriteHeader(int)     {}
func (b *blockedWriter) Flush()              {}

func (b *blockedWriter) Write(p []byte) (int, error) {
	b.once.Do(func() { close(b.writing) })
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *blockedWriter) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRenderJobEvents_DroppedTerminalSnapshotStillCloses(t *testing.T) {
	registry := format.NewDefaultRegistry()
	router := pipeline.NewRouter(registry, nil)
	enc := &gatedEncoder{started: make(chan struct{}), release: make(chan struct{})}
	renders := render.NewManager(nil, enc, render.Options{}, nil)
	t.Cleanup(renders.Close)
	h := NewHandlers(router, registry, checkpoint.NewManager(nil), session.NewMemoryStore(), renders, nil)

	job, err := renders.CreateJob("session-1", render.Config{TotalFrames: 4})
	require.NoError(t, err)
	require.NoError(t, renders.RegisterFrames(job.ID, 4, nil))
	require.NoError(t, renders.QueueJob(job.ID))
	<-enc.started

	rec := newBlockedWriter()
	req := httptest.NewRequest(http.MethodGet, "/render-jobs/"+job.ID+"/events", nil)
	req.SetPathValue("id", job.ID)

	done := make(chan struct{})
	go func() {
		h.RenderJobEvents(rec, req)
		close(done)
	}()

	// With the stream stuck on its first write, flood the subscriber
	// buffer so the completion snapshot is dropped on the floor.
	<-rec.writing
	for i := 0; i < 32; i++ {
		require.NoError(t, renders.UpdateProgress(job.ID, i*3, i))
	}
	close(enc.release)
	require.Eventually(t, func() bool {
		got, err := renders.GetJob(job.ID)
		return err == nil && got.Status == render.StatusComplete
	}, 3*time.Second, 5*time.Millisecond)

	close(rec.release)

	// The stream must still close with a final complete event rather
	// than hanging until client disconnect.
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not close after the job completed")
	}
	assert.Contains(t, rec.String(), `"status":"complete"`)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/productions", nil)
	req.Header.Set("Origin", "https://studio.example.com")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://studio.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
