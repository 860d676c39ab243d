package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/signoff/internal/config"
	"github.com/zulandar/signoff/internal/db"
	"github.com/zulandar/signoff/internal/models"
	"github.com/zulandar/signoff/internal/telegraph"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeInjector struct {
	got telegraph.InjectRequest
	res *telegraph.InjectResult
	err error
}

func (f *fakeInjector) Inject(_ context.Context, req telegraph.InjectRequest) (*telegraph.InjectResult, error) {
	f.got = req
	return f.res, f.err
}

type fakeDocs struct {
	docs []models.Document
}

func (f *fakeDocs) ListAll() []models.Document { return f.docs }

func (f *fakeDocs) ListByState(state string) []models.Document {
	var out []models.Document
	for _, d := range f.docs {
		if d.State == state {
			out = append(out, d)
		}
	}
	return out
}

func (f *fakeDocs) Get(id string) (*models.Document, bool) {
	for i := range f.docs {
		if f.docs[i].ID == id {
			d := f.docs[i]
			return &d, true
		}
	}
	return nil, false
}

func sampleDocs() *fakeDocs {
	return &fakeDocs{docs: []models.Document{
		{ID: "DOC-001", Title: "Spec", State: models.StatePendingApproval},
		{ID: "DOC-002", Title: "Plan", State: models.StateApproved},
		{ID: "DOC-003", Title: "Memo", State: models.StatePendingApproval},
	}}
}

func newTestRouter(t *testing.T, inj Injector, docs DocumentReader) *gin.Engine {
	t.Helper()
	r, err := NewRouter(StartOpts{Injector: inj, Documents: docs})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// --- Construction ---

func TestNewRouter_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts StartOpts
		want string
	}{
		{"no injector", StartOpts{Documents: &fakeDocs{}}, "injector is required"},
		{"no documents", StartOpts{Injector: &fakeInjector{}}, "documents is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRouter(tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestStart_RequiresInjector(t *testing.T) {
	err := Start(context.Background(), StartOpts{Documents: &fakeDocs{}})
	if err == nil || !strings.Contains(err.Error(), "injector is required") {
		t.Errorf("err = %v", err)
	}
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	port := 19080 + int(time.Now().UnixNano()%1000)
	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- Start(ctx, StartOpts{
			Injector:  &fakeInjector{},
			Documents: &fakeDocs{},
			Port:      port,
			Out:       &out,
		})
	}()

	url := fmt.Sprintf("http://localhost:%d/healthz", port)
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("healthz status = %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if !strings.Contains(out.String(), "API listening at") {
		t.Errorf("output = %q", out.String())
	}
}

// --- Injection ---

func TestInject_Created(t *testing.T) {
	inj := &fakeInjector{res: &telegraph.InjectResult{
		Document:       &models.Document{ID: "DOC-004", Title: "Drawing", State: models.StatePendingApproval},
		NotificationID: "n-1",
		Delivered:      true,
	}}
	r := newTestRouter(t, inj, sampleDocs())

	w := do(r, http.MethodPost, "/api/documents",
		`{"title":"Drawing","localPath":"/docs/a.pdf","revision":"A1","notifyEmail":"ana@example.com"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Document       models.Document `json:"document"`
		Delivered      bool            `json:"delivered"`
		Queued         bool            `json:"queued"`
		NotificationID string          `json:"notificationId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Document.ID != "DOC-004" || !resp.Delivered || resp.Queued || resp.NotificationID != "n-1" {
		t.Errorf("response = %+v", resp)
	}

	if inj.got.Title != "Drawing" || inj.got.LocalPath != "/docs/a.pdf" || inj.got.Revision != "A1" {
		t.Errorf("request input = %+v", inj.got.Input)
	}
	if inj.got.NotifyEmail != "ana@example.com" || inj.got.NotifyIdentity != "" {
		t.Errorf("notify = %q/%q", inj.got.NotifyEmail, inj.got.NotifyIdentity)
	}
}

func TestInject_ValidationError(t *testing.T) {
	inj := &fakeInjector{err: fmt.Errorf("%w: title is required", telegraph.ErrInvalidInjection)}
	r := newTestRouter(t, inj, sampleDocs())

	w := do(r, http.MethodPost, "/api/documents", `{"localPath":"/docs/a.pdf"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "title is required") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestInject_BadJSON(t *testing.T) {
	inj := &fakeInjector{}
	r := newTestRouter(t, inj, sampleDocs())

	w := do(r, http.MethodPost, "/api/documents", `{"title":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "invalid JSON body") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestInject_InternalError(t *testing.T) {
	inj := &fakeInjector{err: errors.New("disk full")}
	r := newTestRouter(t, inj, sampleDocs())

	w := do(r, http.MethodPost, "/api/documents", `{"title":"x","localPath":"/x"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "disk full") {
		t.Errorf("internal error leaked: %s", w.Body.String())
	}
}

// --- Listing ---

func TestList_All(t *testing.T) {
	r := newTestRouter(t, &fakeInjector{}, sampleDocs())
	w := do(r, http.MethodGet, "/api/documents", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Documents []models.Document `json:"documents"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Documents) != 3 {
		t.Errorf("documents = %d, want 3", len(resp.Documents))
	}
}

func TestList_ByStateSynonym(t *testing.T) {
	r := newTestRouter(t, &fakeInjector{}, sampleDocs())
	w := do(r, http.MethodGet, "/api/documents?state=pending", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Documents []models.Document `json:"documents"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Documents) != 2 {
		t.Fatalf("documents = %d, want 2", len(resp.Documents))
	}
	for _, d := range resp.Documents {
		if d.State != models.StatePendingApproval {
			t.Errorf("state = %q", d.State)
		}
	}
}

func TestList_EmptyRendersArray(t *testing.T) {
	r := newTestRouter(t, &fakeInjector{}, &fakeDocs{})
	w := do(r, http.MethodGet, "/api/documents?state=rejected", "")
	if !strings.Contains(w.Body.String(), `"documents":[]`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestList_UnknownState(t *testing.T) {
	r := newTestRouter(t, &fakeInjector{}, sampleDocs())
	w := do(r, http.MethodGet, "/api/documents?state=archived", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestGet(t *testing.T) {
	r := newTestRouter(t, &fakeInjector{}, sampleDocs())

	w := do(r, http.MethodGet, "/api/documents/DOC-002", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var doc models.Document
	json.Unmarshal(w.Body.Bytes(), &doc)
	if doc.Title != "Plan" {
		t.Errorf("title = %q", doc.Title)
	}

	w = do(r, http.MethodGet, "/api/documents/DOC-999", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown status = %d", w.Code)
	}
}

// --- History ---

func TestHistory(t *testing.T) {
	gdb, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	if err := db.RecordApproval(gdb, &models.ApprovalEvent{
		DocumentID: "DOC-001", State: models.StateApproved, ActorName: "Ana",
	}); err != nil {
		t.Fatalf("RecordApproval: %v", err)
	}

	r, err := NewRouter(StartOpts{Injector: &fakeInjector{}, Documents: sampleDocs(), DB: gdb})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	w := do(r, http.MethodGet, "/api/documents/DOC-001/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Events []models.ApprovalEvent `json:"events"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Events) != 1 || resp.Events[0].ActorName != "Ana" {
		t.Errorf("events = %+v", resp.Events)
	}

	w = do(r, http.MethodGet, "/api/documents/DOC-003/history", "")
	if !strings.Contains(w.Body.String(), `"events":[]`) {
		t.Errorf("empty history body = %s", w.Body.String())
	}

	w = do(r, http.MethodGet, "/api/documents/DOC-999/history", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown status = %d", w.Code)
	}
}

func TestHistory_NotRegisteredWithoutDB(t *testing.T) {
	r := newTestRouter(t, &fakeInjector{}, sampleDocs())
	w := do(r, http.MethodGet, "/api/documents/DOC-001/history", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

// --- Ambient routes and middleware ---

func TestHealthz(t *testing.T) {
	r := newTestRouter(t, &fakeInjector{}, sampleDocs())
	w := do(r, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("healthz = %d %s", w.Code, w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, &fakeInjector{}, sampleDocs())
	do(r, http.MethodGet, "/api/documents", "")

	w := do(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "signoff_api_requests_total") {
		t.Error("metrics output missing signoff_api_requests_total")
	}
}

func TestRequestID(t *testing.T) {
	r := newTestRouter(t, &fakeInjector{}, sampleDocs())

	w := do(r, http.MethodGet, "/healthz", "")
	if len(w.Header().Get(RequestIDHeader)) != 36 {
		t.Errorf("generated id = %q", w.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "caller-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "caller-123" {
		t.Errorf("propagated id = %q", got)
	}
}
