package gemini_provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(url string) *client {
	return NewClient("test-key", "gemini-2.0-flash", url, 0.2, 1024, 5*time.Second)
}

func candidateBody(texts ...string) string {
	parts := make([]map[string]string, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, map[string]string{"text": t})
	}
	b, _ := json.Marshal(map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{"parts": parts}},
		},
	})
	return string(b)
}

func TestCallConcatenatesParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-2.0-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 1 {
			t.Fatalf("unexpected request shape: %+v", req)
		}
		if !strings.Contains(req.Contents[0].Parts[0].Text, "\n\n---\n\n") {
			t.Errorf("prompt separator missing from %q", req.Contents[0].Parts[0].Text)
		}
		if req.GenerationConfig.MaxOutputTokens != 1024 {
			t.Errorf("expected maxOutputTokens 1024, got %d", req.GenerationConfig.MaxOutputTokens)
		}
		w.Write([]byte(candidateBody("hello ", "world")))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).Call(context.Background(), "summarize", "payload")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", got)
	}
}

func TestCallReturnsFencedInterior(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(candidateBody("Here you go:\n```json\n{\"a\": 1}\n```\ntrailing")))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).Call(context.Background(), "p", "c")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != `{"a": 1}` {
		t.Fatalf("expected fenced interior, got %q", got)
	}
}

func TestCallErrorCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Call(context.Background(), "p", "c")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("error should carry status and body: %v", err)
	}
}

func TestCallJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.GenerationConfig.ResponseMimeType != "application/json" {
			t.Errorf("expected responseMimeType, got %q", req.GenerationConfig.ResponseMimeType)
		}
		if req.GenerationConfig.MaxOutputTokens != 0 {
			t.Errorf("maxOutputTokens should be absent for JSON calls")
		}
		w.Write([]byte(candidateBody(`{"items": ["a", "b"]}`)))
	}))
	defer srv.Close()

	var out struct {
		Items []string `json:"items"`
	}
	if err := newTestClient(srv.URL).CallJSON(context.Background(), "p", "c", &out); err != nil {
		t.Fatalf("CallJSON: %v", err)
	}
	if len(out.Items) != 2 || out.Items[0] != "a" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestCallJSONParseFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(candidateBody("not json at all")))
	}))
	defer srv.Close()

	var out map[string]interface{}
	if err := newTestClient(srv.URL).CallJSON(context.Background(), "p", "c", &out); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestExtractText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  plain text  ", "plain text"},
		{"```\ninner\n```", "inner"},
		{"```json\n{\"k\":1}\n```", `{"k":1}`},
		{"first\n```\none\n```\n```\ntwo\n```", "one"},
	}
	for _, tc := range cases {
		if got := ExtractText(tc.in); got != tc.want {
			t.Fatalf("ExtractText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": []}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Call(context.Background(), "p", "c")
	if err == nil || !strings.Contains(err.Error(), "no candidates") {
		t.Fatalf("expected no-candidates error, got %v", err)
	}
}
