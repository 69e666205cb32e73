package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zcy-charity/jar-service/internal/app/domain/jar"
	"github.com/zcy-charity/jar-service/internal/app/metrics"
	jarsvc "github.com/zcy-charity/jar-service/internal/app/services/jars"
	syncsvc "github.com/zcy-charity/jar-service/internal/app/services/sync"
	"github.com/zcy-charity/jar-service/internal/app/services/volunteers"
	"github.com/zcy-charity/jar-service/internal/app/storage/memory"
	"github.com/zcy-charity/jar-service/internal/blobstore"
)

const testOperatorToken = "operator-secret"

func newTestHandler(t *testing.T, fetcher syncsvc.Fetcher) *Handler {
	t.Helper()
	store := memory.New()
	blobs := blobstore.NewMemory()
	if fetcher == nil {
		fetcher = syncsvc.FetcherFunc(func(context.Context, string) (jar.Observation, error) {
			amount := int64(100)
			return jar.Observation{Amount: &amount, Status: jar.ProviderStatusActive}, nil
		})
	}
	jarService := jarsvc.New(store, store, store, blobs, nil)
	volunteerService := volunteers.New(store, "test-secret", nil)
	syncService := syncsvc.New(store, fetcher, nil, syncsvc.WithMinInterval(time.Millisecond))
	scheduler := syncsvc.NewScheduler(syncService, "", metrics.New(), nil)
	return New(jarService, volunteerService, scheduler, metrics.New(), Config{OperatorToken: testOperatorToken}, nil)
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// doOperator sends a request carrying the operator credential instead of a
// volunteer token.
func doOperator(t *testing.T, h http.Handler, method, path, operatorToken string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if operatorToken != "" {
		req.Header.Set("X-Operator-Token", operatorToken)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

// registerActiveVolunteer walks the bootstrap flow: register, log in, then
// have an operator activate the account.
func registerActiveVolunteer(t *testing.T, h *Handler) (token string, id string) {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/volunteers", "", map[string]string{
		"email":       "helper@example.com",
		"password":    "correct horse",
		"public_name": "Helper",
		"first_name":  "Anna",
		"last_name":   "Kovalenko",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	var created volunteerResponse
	decodeBody(t, rec, &created)

	rec = doJSON(t, h, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "helper@example.com",
		"password": "correct horse",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	var login loginResponse
	decodeBody(t, rec, &login)

	rec = doOperator(t, h, http.MethodPut, "/volunteers/"+created.ID+"/active", testOperatorToken, map[string]bool{"active": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("activate: %d %s", rec.Code, rec.Body.String())
	}
	return login.Token, created.ID
}

func createJar(t *testing.T, h *Handler, token, externalID string, goal int64) jarResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/jars", token, map[string]interface{}{
		"external_id": externalID,
		"title":       "drone fundraiser",
		"goal":        goal,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create jar: %d %s", rec.Code, rec.Body.String())
	}
	var created jarResponse
	decodeBody(t, rec, &created)
	return created
}

func TestJarLifecycle(t *testing.T) {
	h := newTestHandler(t, nil)
	token, volunteerID := registerActiveVolunteer(t, h)

	created := createJar(t, h, token, "abcdefghij", 100000)
	if created.Title != "Drone fundraiser" {
		t.Fatalf("title should be capitalised, got %q", created.Title)
	}
	if created.VolunteerID != volunteerID {
		t.Fatalf("jar should belong to the actor")
	}

	rec := doJSON(t, h, http.MethodGet, "/jars/"+created.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get jar: %d", rec.Code)
	}
	var sum jarSummaryResponse
	decodeBody(t, rec, &sum)
	if sum.CurrentSum != nil {
		t.Fatal("a jar without samples has no current sum")
	}

	desc := "updated description"
	rec = doJSON(t, h, http.MethodPatch, "/jars/"+created.ID, token, map[string]string{"description": desc})
	if rec.Code != http.StatusOK {
		t.Fatalf("update jar: %d %s", rec.Code, rec.Body.String())
	}
	var updated jarResponse
	decodeBody(t, rec, &updated)
	if updated.Description != desc {
		t.Fatalf("description not updated: %q", updated.Description)
	}

	rec = doJSON(t, h, http.MethodDelete, "/jars/"+created.ID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete jar: %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/jars/"+created.ID, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted jar should be gone, got %d", rec.Code)
	}
}

func TestWritesRequireAuthentication(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := doJSON(t, h, http.MethodPost, "/jars", "", map[string]string{"external_id": "abcdefghij", "title": "drone fundraiser"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/jars", "garbage-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestWritesRequireActiveVolunteer(t *testing.T) {
	h := newTestHandler(t, nil)

	// Registered but never activated.
	rec := doJSON(t, h, http.MethodPost, "/volunteers", "", map[string]string{
		"email":       "inactive@example.com",
		"password":    "correct horse",
		"public_name": "Sleeper",
		"first_name":  "Ivan",
		"last_name":   "Shevchenko",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "inactive@example.com", "password": "correct horse",
	})
	var login loginResponse
	decodeBody(t, rec, &login)

	rec = doJSON(t, h, http.MethodPost, "/jars", login.Token, map[string]string{
		"external_id": "abcdefghij", "title": "drone fundraiser",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("inactive volunteer should get 403, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestSetActiveRequiresOperatorToken(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := doJSON(t, h, http.MethodPost, "/volunteers", "", map[string]string{
		"email":       "fresh@example.com",
		"password":    "correct horse",
		"public_name": "Fresh",
		"first_name":  "Olha",
		"last_name":   "Tkachenko",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d", rec.Code)
	}
	var created volunteerResponse
	decodeBody(t, rec, &created)

	rec = doJSON(t, h, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "fresh@example.com", "password": "correct horse",
	})
	var login loginResponse
	decodeBody(t, rec, &login)

	// A volunteer token, even the account's own, must not activate accounts.
	rec = doJSON(t, h, http.MethodPut, "/volunteers/"+created.ID+"/active", login.Token, map[string]bool{"active": true})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("own token must not activate, got %d %s", rec.Code, rec.Body.String())
	}
	rec = doOperator(t, h, http.MethodPut, "/volunteers/"+created.ID+"/active", "wrong-credential", map[string]bool{"active": true})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong operator credential must be rejected, got %d", rec.Code)
	}
	rec = doOperator(t, h, http.MethodPut, "/volunteers/"+created.ID+"/active", "", map[string]bool{"active": true})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("missing credential must be rejected, got %d", rec.Code)
	}

	rec = doOperator(t, h, http.MethodPut, "/volunteers/"+created.ID+"/active", testOperatorToken, map[string]bool{"active": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("operator activation: %d %s", rec.Code, rec.Body.String())
	}
	var activated volunteerResponse
	decodeBody(t, rec, &activated)
	if !activated.Active {
		t.Fatal("account should be active")
	}
}

func TestListJarsOrderingValidation(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := doJSON(t, h, http.MethodGet, "/jars?ordering=bogus", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown ordering should be rejected, got %d", rec.Code)
	}
	for _, ordering := range []string{"fill_percentage", "-fill_percentage", "date_added", "-date_added", ""} {
		rec := doJSON(t, h, http.MethodGet, "/jars?ordering="+ordering, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("ordering %q should be accepted, got %d", ordering, rec.Code)
		}
	}
}

func TestValidationErrorsMapTo400(t *testing.T) {
	h := newTestHandler(t, nil)
	token, _ := registerActiveVolunteer(t, h)

	rec := doJSON(t, h, http.MethodPost, "/jars", token, map[string]string{
		"external_id": "short", "title": "drone fundraiser",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["field"] != "external_id" {
		t.Fatalf("error should name the field, got %v", body)
	}
}

func TestBannerEndpoint(t *testing.T) {
	h := newTestHandler(t, nil)
	token, _ := registerActiveVolunteer(t, h)
	for i := 0; i < 10; i++ {
		createJar(t, h, token, fmt.Sprintf("%c%s", 'a'+i, "aaaaaaaaa"), 1000)
	}

	rec := doJSON(t, h, http.MethodGet, "/banner", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("banner: %d", rec.Code)
	}
	var banner []jarSummaryResponse
	decodeBody(t, rec, &banner)
	if len(banner) != 8 {
		t.Fatalf("banner caps at 8 jars, got %d", len(banner))
	}
}

func TestTagEndpoints(t *testing.T) {
	h := newTestHandler(t, nil)
	token, _ := registerActiveVolunteer(t, h)

	rec := doJSON(t, h, http.MethodPost, "/tags", token, map[string]string{"name": "Army"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create tag: %d %s", rec.Code, rec.Body.String())
	}
	var tag tagResponse
	decodeBody(t, rec, &tag)
	if tag.Name != "army" {
		t.Fatalf("tag name should be lower-cased, got %q", tag.Name)
	}

	rec = doJSON(t, h, http.MethodGet, "/tags", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list tags: %d", rec.Code)
	}
	var tags []tagResponse
	decodeBody(t, rec, &tags)
	if len(tags) != 1 {
		t.Fatalf("expected 1 tag, got %d", len(tags))
	}

	rec = doJSON(t, h, http.MethodDelete, "/tags/"+tag.ID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete tag: %d", rec.Code)
	}
}

func TestSyncRunEndpoint(t *testing.T) {
	h := newTestHandler(t, nil)
	token, _ := registerActiveVolunteer(t, h)
	created := createJar(t, h, token, "abcdefghij", 100000)

	rec := doJSON(t, h, http.MethodPost, "/sync/run", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync run: %d %s", rec.Code, rec.Body.String())
	}
	var report syncReportResponse
	decodeBody(t, rec, &report)
	if report.Synced != 1 {
		t.Fatalf("expected 1 synced jar, got %+v", report)
	}

	rec = doJSON(t, h, http.MethodGet, "/jars/"+created.ID+"/samples", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("samples: %d", rec.Code)
	}
	var samples []sampleResponse
	decodeBody(t, rec, &samples)
	if len(samples) != 1 || samples[0].IncomeDelta != 100 {
		t.Fatalf("unexpected samples %+v", samples)
	}

	rec = doJSON(t, h, http.MethodPost, "/sync/run", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("sync run requires authentication, got %d", rec.Code)
	}
}
