package gemini_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"

	// promptSeparator joins the instruction prompt and the content payload.
	promptSeparator = "\n\n---\n\n"
)

// fenceRE matches the first fenced code block in a response. First-match
// semantics are deliberate: multiple or nested fences fall to whatever the
// first fence encloses.
var fenceRE = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\n(.*?)```")

// client implements the provider interface against the generative-language API
type client struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

// request represents a request to the generateContent endpoint
type request struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

// response represents a generateContent response
type response struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// NewClient creates a new Gemini client
func NewClient(apiKey, model, baseURL string, temperature float64, maxTokens int, timeout time.Duration) *client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &client{
		apiKey:      apiKey,
		model:       model,
		baseURL:     strings.TrimRight(baseURL, "/"),
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Call sends the prompt and content as a single user message and returns the
// response text. A fenced code block in the response wins over the raw text.
func (c *client) Call(ctx context.Context, prompt, content string) (string, error) {
	raw, err := c.sendRequest(ctx, prompt+promptSeparator+content, false)
	if err != nil {
		return "", err
	}
	return ExtractText(raw), nil
}

// CallJSON requests structured JSON output and unmarshals it into out.
func (c *client) CallJSON(ctx context.Context, prompt, payload string, out interface{}) error {
	raw, err := c.sendRequest(ctx, prompt+promptSeparator+payload, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(ExtractText(raw)), out); err != nil {
		return fmt.Errorf("failed to parse structured response: %w", err)
	}
	return nil
}

// ExtractText returns the interior of the first fenced code block if one
// exists, otherwise the trimmed raw text.
func ExtractText(raw string) string {
	if m := fenceRE.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}

// sendRequest sends a request to the generateContent endpoint
func (c *client) sendRequest(ctx context.Context, text string, asJSON bool) (string, error) {
	gc := generationConfig{Temperature: c.temperature}
	if asJSON {
		gc.ResponseMimeType = "application/json"
	} else {
		gc.MaxOutputTokens = c.maxTokens
	}
	requestBody := request{
		Contents:         []content{{Parts: []part{{Text: text}}}},
		GenerationConfig: gc,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var geminiResp response
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(geminiResp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	var sb strings.Builder
	for _, p := range geminiResp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
