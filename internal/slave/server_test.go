package slave

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"uptimefleet/internal/domain"
)

type instantRunner struct{}

func (instantRunner) Execute(ctx context.Context, cfg domain.ServiceConfig) domain.MonitoringResult {
	return domain.MonitoringResult{ServiceID: cfg.ID, Timestamp: time.Now().UTC(), Success: true}
}

func testServer(t *testing.T) (*Server, *Registry) {
	t.Helper()
	reg := NewRegistry(zap.NewNop(), instantRunner{}, 4)
	t.Cleanup(reg.Close)
	return NewServer(zap.NewNop(), reg, "tok_1"), reg
}

func doJSON(t *testing.T, h http.Handler, method, path, body, key string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth_NoAuth(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv.Router(), "GET", "/health", "", "")
	if rec.Code != 200 {
		t.Fatalf("health = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["status"] != "ok" {
		t.Fatalf("health body = %q", rec.Body.String())
	}
}

func TestAddService_RequiresAuth(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv.Router(), "POST", "/service", `{}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", rec.Code)
	}
}

func TestAddService_HTTPWithoutURL(t *testing.T) {
	srv, _ := testServer(t)
	body := `{"id":"s1","name":"S1","type":"http","interval":30,"timeout":5000}`
	rec := doJSON(t, srv.Router(), "POST", "/service", body, "tok_1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "url") {
		t.Fatalf("error should mention url: %s", rec.Body.String())
	}
}

func TestAddService_ICMPWithoutHost(t *testing.T) {
	srv, _ := testServer(t)
	body := `{"id":"s1","name":"S1","type":"icmp","interval":30,"timeout":5000}`
	rec := doJSON(t, srv.Router(), "POST", "/service", body, "tok_1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAddService_RegistersAndConflicts(t *testing.T) {
	srv, reg := testServer(t)
	body := `{"id":"s1","name":"S1","type":"http","url":"https://example.com","interval":30,"timeout":5000}`

	rec := doJSON(t, srv.Router(), "POST", "/service", body, "tok_1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := reg.IDs(); len(got) != 1 || got[0] != "s1" {
		t.Fatalf("registry ids = %v", got)
	}

	rec = doJSON(t, srv.Router(), "POST", "/service", body, "tok_1")
	if rec.Code != http.StatusConflict {
		t.Fatalf("want 409 on duplicate, got %d", rec.Code)
	}
}

func TestRemoveService(t *testing.T) {
	srv, reg := testServer(t)
	if err := reg.Add(testConfig("s1")); err != nil {
		t.Fatalf("add: %v", err)
	}

	rec := doJSON(t, srv.Router(), "DELETE", "/service/s1", "", "tok_1")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("want 204, got %d", rec.Code)
	}
	if got := reg.IDs(); len(got) != 0 {
		t.Fatalf("service not removed: %v", got)
	}

	rec = doJSON(t, srv.Router(), "DELETE", "/service/s1", "", "tok_1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}
