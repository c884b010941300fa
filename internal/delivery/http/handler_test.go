package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	mockdispatch "github.com/Harsh-BH/codr/internal/dispatch/mock"
	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/events"
	"github.com/Harsh-BH/codr/internal/executor"
	"github.com/Harsh-BH/codr/internal/input"
	"github.com/Harsh-BH/codr/internal/parser"
	mockrepo "github.com/Harsh-BH/codr/internal/repository/mock"
	"github.com/Harsh-BH/codr/internal/usecase"
	"github.com/Harsh-BH/codr/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router  *gin.Engine
	store   *mockrepo.JobStore
	archive *mockrepo.JobArchive
	pub     *mockdispatch.Publisher
	hub     *events.Hub
	broker  *input.Broker
}

type envOption func(*RouterConfig, *Dependencies)

func withConfig(fn func(*RouterConfig)) envOption {
	return func(cfg *RouterConfig, _ *Dependencies) { fn(cfg) }
}

func setupTestRouter(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	env := &testEnv{
		store:   mockrepo.NewJobStore(),
		archive: mockrepo.NewJobArchive(),
		pub:     mockdispatch.NewPublisher(),
		hub:     events.NewHub(0, logger),
		broker:  input.NewBroker(8),
	}
	v := validator.New(parser.NewAdapter(), logger)

	deps := Dependencies{
		SubmitUC:   usecase.NewSubmitJobUsecase(v, env.store, env.pub, 1024, logger),
		GetJobUC:   usecase.NewGetJobUsecase(env.store, env.archive, logger),
		InputUC:    usecase.NewSendInputUsecase(env.store, env.broker, logger),
		Validator:  v,
		Subscriber: env.hub,
		Languages:  executor.Catalog(),
		Health: map[string]HealthCheck{
			"redis": func(context.Context) error { return nil },
		},
	}
	cfg := RouterConfig{
		RateLimitSubmit: 1000,
		RateLimitStream: 1000,
		RateBurst:       1000,
		MaxBodyBytes:    1 << 20,
		CORSOrigins:     []string{"*"},
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	env.router = NewRouter(deps, cfg, logger)
	return env
}

func (e *testEnv) do(method, path string, body any, header ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestSubmitHandler_Success(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(http.MethodPost, "/api/v1/jobs", map[string]string{
		"code":     "print('Hello')",
		"language": "python",
		"filename": "main.py",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp domain.SubmitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Status != domain.StatusQueued {
		t.Errorf("expected queued, got %s", resp.Status)
	}
	job, err := env.store.Get(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("job not stored: %v", err)
	}
	if job.Filename != "main.py" {
		t.Errorf("expected filename to be kept, got %q", job.Filename)
	}
	if len(env.pub.Published) != 1 {
		t.Errorf("expected 1 published job, got %d", len(env.pub.Published))
	}
}

func TestSubmitHandler_Rejected(t *testing.T) {
	env := setupTestRouter(t)
	created := false
	env.store.CreateFunc = func(context.Context, string, string, string) (uuid.UUID, error) {
		created = true
		return uuid.New(), nil
	}

	w := env.do(http.MethodPost, "/api/v1/jobs", map[string]string{
		"code":     "eval('1+1')",
		"language": "python",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["error"] != "ValidationRejected" {
		t.Errorf("expected ValidationRejected, got %v", body["error"])
	}
	if reason, _ := body["reason"].(string); !strings.Contains(reason, "eval") {
		t.Errorf("expected the offending snippet in the reason, got %q", reason)
	}
	if created {
		t.Error("a rejected submission must not create a job")
	}
}

func TestSubmitHandler_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body any
		want int
	}{
		{"unknown language", map[string]string{"code": "puts 1", "language": "ruby"}, http.StatusBadRequest},
		{"missing code", map[string]string{"language": "python"}, http.StatusBadRequest},
		{"empty body", map[string]string{}, http.StatusBadRequest},
		{"blank code", map[string]string{"code": "   ", "language": "python"}, http.StatusBadRequest},
		{"too large", map[string]string{"code": strings.Repeat("a", 2048), "language": "python"}, http.StatusRequestEntityTooLarge},
		{"syntax error", map[string]string{"code": "def (:", "language": "python"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestRouter(t)
			w := env.do(http.MethodPost, "/api/v1/jobs", tt.body)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if len(env.pub.Published) != 0 {
				t.Error("nothing should be dispatched")
			}
		})
	}
}

func TestSubmitHandler_PublishFailure(t *testing.T) {
	env := setupTestRouter(t)
	env.pub.PublishFn = func(context.Context, uuid.UUID) error { return errors.New("broker down") }

	w := env.do(http.MethodPost, "/api/v1/jobs", map[string]string{"code": "print(1)", "language": "python"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestSubmitHandler_BodyLimit(t *testing.T) {
	env := setupTestRouter(t, withConfig(func(cfg *RouterConfig) { cfg.MaxBodyBytes = 64 }))
	body := `{"code":"` + strings.Repeat("x", 200) + `","language":"python"}`

	declared := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(body))
	declared.Header.Set("Content-Type", "application/json")

	// No Content-Length, so the cap is only hit while decoding.
	chunked := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(body))
	chunked.Header.Set("Content-Type", "application/json")
	chunked.ContentLength = -1

	for name, req := range map[string]*http.Request{"declared": declared, "chunked": chunked} {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("%s: expected 413, got %d: %s", name, w.Code, w.Body.String())
			continue
		}
		if got := decode(t, w)["error"]; got != domain.ErrPayloadTooLarge.Error() {
			t.Errorf("%s: unexpected error %v", name, got)
		}
	}
	if len(env.pub.Published) != 0 {
		t.Error("oversized submission must not be dispatched")
	}
}

func TestGetJobHandler(t *testing.T) {
	env := setupTestRouter(t)
	id := uuid.New()
	env.store.Put(&domain.Job{ID: id, Code: "print(1)", Language: "python", Status: domain.StatusQueued})

	w := env.do(http.MethodGet, "/api/v1/jobs/"+id.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := decode(t, w); body["status"] != "queued" || body["job_id"] != id.String() {
		t.Errorf("unexpected body %v", body)
	}

	w = env.do(http.MethodGet, "/api/v1/jobs/"+id.String()+"/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := decode(t, w); body["status"] != "queued" {
		t.Errorf("unexpected body %v", body)
	}

	if w := env.do(http.MethodGet, "/api/v1/jobs/"+uuid.New().String(), nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/v1/jobs/"+uuid.New().String()+"/status", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/v1/jobs/not-a-uuid", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGetJobHandler_StoreUnavailable(t *testing.T) {
	env := setupTestRouter(t)
	env.store.GetFunc = func(context.Context, uuid.UUID) (*domain.Job, error) {
		return nil, domain.ErrStoreUnavailable
	}
	if w := env.do(http.MethodGet, "/api/v1/jobs/"+uuid.New().String(), nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestInputHandler(t *testing.T) {
	env := setupTestRouter(t)
	running := uuid.New()
	env.store.Put(&domain.Job{ID: running, Status: domain.StatusProcessing})
	queued := uuid.New()
	env.store.Put(&domain.Job{ID: queued, Status: domain.StatusQueued})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := env.broker.Subscribe(ctx, running)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	w := env.do(http.MethodPost, "/api/v1/jobs/"+running.String()+"/input", map[string]string{"data": "5\n"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if body := decode(t, w); body["delivered"] != true {
		t.Errorf("expected delivered, got %v", body)
	}
	if got := string(<-ch); got != "5\n" {
		t.Errorf("expected 5, got %q", got)
	}

	w = env.do(http.MethodPost, "/api/v1/jobs/"+queued.String()+"/input", map[string]string{"data": "5\n"})
	if body := decode(t, w); w.Code != http.StatusAccepted || body["delivered"] != false {
		t.Errorf("input to a queued job must be ignored, got %d %v", w.Code, body)
	}
}

func TestValidateHandler(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(http.MethodPost, "/api/v1/validate", map[string]string{"code": "print('Hello')", "language": "python"})
	if body := decode(t, w); w.Code != http.StatusOK || body["valid"] != true {
		t.Errorf("expected valid, got %d %v", w.Code, body)
	}

	w = env.do(http.MethodPost, "/api/v1/validate", map[string]string{"code": "import os", "language": "python"})
	body := decode(t, w)
	if w.Code != http.StatusOK || body["valid"] != false || body["reason"] == "" {
		t.Errorf("expected rejection, got %d %v", w.Code, body)
	}

	w = env.do(http.MethodPost, "/api/v1/validate", map[string]string{"code": "x", "language": "cobol"})
	if body := decode(t, w); body["valid"] != false || body["reason"] != "Unsupported language: cobol" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestLanguageHandler(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(http.MethodGet, "/api/v1/languages", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Languages []domain.LanguageInfo `json:"languages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Languages) != len(domain.Languages) {
		t.Errorf("expected %d languages, got %d", len(domain.Languages), len(body.Languages))
	}
}

func TestHealthHandler(t *testing.T) {
	env := setupTestRouter(t)
	if w := env.do(http.MethodGet, "/api/v1/health", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	env = setupTestRouter(t, func(_ *RouterConfig, deps *Dependencies) {
		deps.Health["postgres"] = func(context.Context) error { return errors.New("down") }
	})
	w := env.do(http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	body := decode(t, w)
	services := body["services"].(map[string]any)
	if services["postgres"] != "unavailable" || services["redis"] != "ok" {
		t.Errorf("unexpected services %v", services)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	env := setupTestRouter(t, withConfig(func(cfg *RouterConfig) { cfg.APIKey = "k3y" }))

	if w := env.do(http.MethodGet, "/api/v1/languages", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/v1/languages", nil, "X-API-Key", "wrong"); w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/v1/languages", nil, "X-API-Key", "k3y"); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/v1/health", nil); w.Code != http.StatusOK {
		t.Errorf("health must not require a key, got %d", w.Code)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	env := setupTestRouter(t, withConfig(func(cfg *RouterConfig) {
		cfg.RateLimitSubmit = 0.001
		cfg.RateBurst = 1
	}))

	body := map[string]string{"code": "print(1)", "language": "python"}
	if w := env.do(http.MethodPost, "/api/v1/jobs", body); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/v1/jobs", body); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/v1/languages", nil); w.Code != http.StatusOK {
		t.Errorf("other endpoints are not submit limited, got %d", w.Code)
	}
}

func TestHistoryHandler(t *testing.T) {
	env := setupTestRouter(t)
	id := uuid.New()
	now := time.Now().UTC()
	_ = env.archive.Save(context.Background(), &domain.Job{ID: id, Status: domain.StatusCompleted, CompletedAt: &now})

	if w := env.do(http.MethodGet, "/api/v1/history/"+id.String(), nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/v1/history/"+uuid.New().String(), nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
