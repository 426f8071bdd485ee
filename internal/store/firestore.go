package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultBaseURL = "https://firestore.googleapis.com"

var docOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "turnvault_document_ops_total",
	Help: "Document store operations by kind and outcome.",
}, []string{"op", "outcome"})

// Client is a minimal document-store client over the Firestore REST API.
// One page, no transactions, no retries: a failed call is reported as-is.
type Client struct {
	projectID  string
	apiKey     string
	database   string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new document-store client
func NewClient(projectID, apiKey, database, baseURL string, timeout time.Duration) *Client {
	if database == "" {
		database = "(default)"
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		projectID:  projectID,
		apiKey:     apiKey,
		database:   database,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// collectionURL builds the REST URL for a collection path. The path may be a
// nested subcollection like "sessions/abc/turns".
func (c *Client) collectionURL(collection string) string {
	return fmt.Sprintf("%s/v1/projects/%s/databases/%s/documents/%s",
		c.baseURL, c.projectID, url.PathEscape(c.database), collection)
}

// Get fetches a document's fields. A missing document is (nil, nil); any
// other non-success response is an error carrying the provider's message.
func (c *Client) Get(ctx context.Context, collection, id string) (map[string]interface{}, error) {
	u := c.collectionURL(collection) + "/" + url.PathEscape(id) + "?key=" + c.apiKey
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		docOps.WithLabelValues("get", "error").Inc()
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		docOps.WithLabelValues("get", "miss").Inc()
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		docOps.WithLabelValues("get", "error").Inc()
		return nil, providerError("get", resp.StatusCode, body)
	}

	var doc struct {
		Fields map[string]interface{} `json:"fields"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	docOps.WithLabelValues("get", "ok").Inc()
	return FromWireFields(doc.Fields)
}

// Set upserts a document, replacing its fields with the given native values.
func (c *Client) Set(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	wire, err := ToWireFields(fields)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]interface{}{"fields": wire})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	u := c.collectionURL(collection) + "/" + url.PathEscape(id) + "?key=" + c.apiKey
	req, err := http.NewRequestWithContext(ctx, "PATCH", u, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		docOps.WithLabelValues("set", "error").Inc()
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		docOps.WithLabelValues("set", "error").Inc()
		return providerError("set", resp.StatusCode, body)
	}
	docOps.WithLabelValues("set", "ok").Inc()
	return nil
}

// List returns a single page of converted documents, each annotated with its
// identifier under the "_id" key.
func (c *Client) List(ctx context.Context, collection, orderBy string, desc bool, limit int) ([]map[string]interface{}, error) {
	u := c.collectionURL(collection) + "?key=" + c.apiKey
	if limit > 0 {
		u += fmt.Sprintf("&pageSize=%d", limit)
	}
	if orderBy != "" {
		dir := ""
		if desc {
			dir = " desc"
		}
		u += "&orderBy=" + url.QueryEscape(orderBy+dir)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		docOps.WithLabelValues("list", "error").Inc()
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		docOps.WithLabelValues("list", "error").Inc()
		return nil, providerError("list", resp.StatusCode, body)
	}

	var page struct {
		Documents []struct {
			Name   string                 `json:"name"`
			Fields map[string]interface{} `json:"fields"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	out := make([]map[string]interface{}, 0, len(page.Documents))
	for _, d := range page.Documents {
		fields, err := FromWireFields(d.Fields)
		if err != nil {
			return nil, err
		}
		if fields == nil {
			fields = map[string]interface{}{}
		}
		if i := strings.LastIndex(d.Name, "/"); i >= 0 {
			fields["_id"] = d.Name[i+1:]
		}
		out = append(out, fields)
	}
	docOps.WithLabelValues("list", "ok").Inc()
	return out, nil
}

// providerError surfaces the store's own message when it sends one.
func providerError(op string, status int, body []byte) error {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return fmt.Errorf("document store %s failed (%d): %s", op, status, e.Error.Message)
	}
	return fmt.Errorf("document store %s failed (%d): %s", op, status, strings.TrimSpace(string(body)))
}
