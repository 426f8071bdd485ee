package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/minjae-ko/turnvault/config"
	"github.com/minjae-ko/turnvault/internal/export"
	"github.com/minjae-ko/turnvault/internal/extract"
	"github.com/minjae-ko/turnvault/internal/render"
	"github.com/minjae-ko/turnvault/internal/store"
)

type fakeDocs struct {
	docs map[string]map[string]map[string]interface{}
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: map[string]map[string]map[string]interface{}{}}
}

func (f *fakeDocs) Get(_ context.Context, collection, id string) (map[string]interface{}, error) {
	fields, ok := f.docs[collection][id]
	if !ok {
		return nil, nil
	}
	return fields, nil
}

func (f *fakeDocs) Set(_ context.Context, collection, id string, fields map[string]interface{}) error {
	if f.docs[collection] == nil {
		f.docs[collection] = map[string]map[string]interface{}{}
	}
	stored := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		switch x := v.(type) {
		case int:
			stored[k] = int64(x)
		default:
			stored[k] = v
		}
	}
	if _, ok := stored["savedAt"]; !ok {
		if _, isTime := stored["updatedAt"].(time.Time); !isTime {
			stored["updatedAt"] = time.Now().UTC()
		}
	}
	f.docs[collection][id] = stored
	return nil
}

func (f *fakeDocs) List(_ context.Context, collection, _ string, _ bool, _ int) ([]map[string]interface{}, error) {
	out := []map[string]interface{}{}
	for id, fields := range f.docs[collection] {
		annotated := map[string]interface{}{"_id": id}
		for k, v := range fields {
			annotated[k] = v
		}
		out = append(out, annotated)
	}
	return out, nil
}

type fakeProvider struct {
	calls int
	fail  bool
}

func (p *fakeProvider) Call(context.Context, string, string) (string, error) {
	p.calls++
	if p.fail {
		return "", errors.New("provider down")
	}
	return fmt.Sprintf(`{"batch":%d}`, p.calls), nil
}

func (p *fakeProvider) CallJSON(context.Context, string, string, interface{}) error {
	return errors.New("not used")
}

func newTestHandler(docs *fakeDocs, p *fakeProvider) *SessionsHandler {
	repo := store.NewRepo(docs)
	h := &SessionsHandler{
		Repo:     repo,
		Pipeline: extract.New(p),
		Export:   export.NewBuilder(repo),
		Extract:  config.ExtractConfig{BatchSize: 10},
		Logger:   log.New(log.Writer(), "[SESSIONS] ", log.LstdFlags),
	}
	h.Shell = render.NewShell(nil)
	return h
}

func ctxWithBody(t *testing.T, method, target, body string, params ...string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for i := 0; i+1 < len(params); i += 2 {
		c.SetParamNames(params[i])
		c.SetParamValues(params[i+1])
	}
	return c, rec
}

func saveTurns(t *testing.T, h *SessionsHandler, sessionID string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		body := fmt.Sprintf(`{"turn":%d,"subject":"용사의 여정","title":"여정","html":"<p>%d번째 내용</p>"}`, i, i)
		c, rec := ctxWithBody(t, http.MethodPost, "/api/sessions/s1/turns", body, "id", sessionID)
		if err := h.saveTurn(c); err != nil {
			t.Fatalf("saveTurn %d: %v", i, err)
		}
		if rec.Code != http.StatusCreated {
			t.Fatalf("saveTurn %d: status %d", i, rec.Code)
		}
	}
}

func TestCreateSessionMintsID(t *testing.T) {
	docs := newFakeDocs()
	h := newTestHandler(docs, &fakeProvider{})

	c, rec := ctxWithBody(t, http.MethodPost, "/api/sessions", `{"subject":"용사의 여정","title":"서장"}`)
	if err := h.create(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["id"] == "" {
		t.Fatal("no session id in response")
	}
	if docs.docs["sessions"][body["id"]] == nil {
		t.Fatalf("session %s not written", body["id"])
	}
}

func TestSaveTurnPersistsMarkupAndText(t *testing.T) {
	docs := newFakeDocs()
	h := newTestHandler(docs, &fakeProvider{})
	saveTurns(t, h, "s1", 1)

	turn := docs.docs["sessions/s1/turns"]["1"]
	if turn == nil {
		t.Fatal("turn document not written")
	}
	if turn["html"] != "<p>1번째 내용</p>" {
		t.Fatalf("raw markup not stored: %v", turn["html"])
	}
	text, _ := turn["text"].(string)
	if !strings.HasPrefix(text, "## [턴 1]") {
		t.Fatalf("converted text not stored: %q", text)
	}
	if docs.docs["sessions"]["s1"] == nil {
		t.Fatal("session not created on first turn")
	}
}

func TestSaveTurnValidation(t *testing.T) {
	h := newTestHandler(newFakeDocs(), &fakeProvider{})
	c, _ := ctxWithBody(t, http.MethodPost, "/api/sessions/s1/turns", `{"turn":0,"html":"<p>x</p>"}`, "id", "s1")
	err := h.saveTurn(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestGetSessionWithTurns(t *testing.T) {
	h := newTestHandler(newFakeDocs(), &fakeProvider{})
	saveTurns(t, h, "s1", 2)

	c, rec := ctxWithBody(t, http.MethodGet, "/api/sessions/s1", "", "id", "s1")
	if err := h.get(c); err != nil {
		t.Fatalf("get: %v", err)
	}
	var resp struct {
		Session store.Session `json:"session"`
		Turns   []store.Turn  `json:"turns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session.TurnCount != 2 || len(resp.Turns) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Turns[0].Number != 1 || resp.Turns[1].Number != 2 {
		t.Fatal("turns must be ordered by number")
	}
}

func TestGetMissingSessionIs404(t *testing.T) {
	h := newTestHandler(newFakeDocs(), &fakeProvider{})
	c, _ := ctxWithBody(t, http.MethodGet, "/api/sessions/none", "", "id", "none")
	err := h.get(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestExtractRunsPipelineAndPersists(t *testing.T) {
	docs := newFakeDocs()
	p := &fakeProvider{}
	h := newTestHandler(docs, p)
	saveTurns(t, h, "s1", 3)

	c, rec := ctxWithBody(t, http.MethodPost, "/api/sessions/s1/extract", `{"marker":"turn","batch_size":2}`, "id", "s1")
	if err := h.extract(c); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if p.calls != 2 {
		t.Fatalf("3 turns at batch size 2 should make 2 calls, got %d", p.calls)
	}
	var resp ExtractResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Kind != "micro" || resp.ChunkCount != 3 || len(resp.Batches) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if docs.docs["extractions"]["s1_micro"] == nil {
		t.Fatal("extraction result not persisted")
	}
}

func TestExtractFailureIsBadGateway(t *testing.T) {
	h := newTestHandler(newFakeDocs(), &fakeProvider{fail: true})
	saveTurns(t, h, "s1", 1)

	c, _ := ctxWithBody(t, http.MethodPost, "/api/sessions/s1/extract", `{}`, "id", "s1")
	err := h.extract(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %v", err)
	}
}

func TestExportRawDownload(t *testing.T) {
	h := newTestHandler(newFakeDocs(), &fakeProvider{})
	saveTurns(t, h, "s1", 1)

	c, rec := ctxWithBody(t, http.MethodGet, "/api/sessions/s1/export?mode=raw", "", "id", "s1")
	if err := h.export(c); err != nil {
		t.Fatalf("export: %v", err)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "turnvault_s1_raw.json") {
		t.Fatalf("missing attachment header: %q", cd)
	}
	var doc export.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Meta.Format != export.FormatRaw || len(doc.Turns) != 1 {
		t.Fatalf("unexpected document: %+v", doc.Meta)
	}
}

func TestExportBadMode(t *testing.T) {
	h := newTestHandler(newFakeDocs(), &fakeProvider{})
	c, _ := ctxWithBody(t, http.MethodGet, "/api/sessions/s1/export?mode=weird", "", "id", "s1")
	err := h.export(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestViewRendersShell(t *testing.T) {
	h := newTestHandler(newFakeDocs(), &fakeProvider{})
	saveTurns(t, h, "s1", 1)

	c, rec := ctxWithBody(t, http.MethodGet, "/sessions/s1/view", "", "id", "s1")
	if err := h.view(c); err != nil {
		t.Fatalf("view: %v", err)
	}
	page := rec.Body.String()
	if !strings.Contains(page, "tv-shell") || !strings.Contains(page, "1번째 내용") {
		t.Fatalf("shell page incomplete:\n%s", page)
	}
}

func TestListSessions(t *testing.T) {
	h := newTestHandler(newFakeDocs(), &fakeProvider{})
	saveTurns(t, h, "s1", 1)

	c, rec := ctxWithBody(t, http.MethodGet, "/api/sessions", "")
	if err := h.list(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	var sessions []store.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s1" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}
