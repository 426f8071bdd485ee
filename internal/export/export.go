// Package export builds the downloadable session documents.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minjae-ko/turnvault/internal/store"
)

const (
	Version = "1"

	FormatRaw       = "raw"
	FormatExtracted = "extracted"
)

// Meta heads every exported document.
type Meta struct {
	Version    string    `json:"version"`
	Format     string    `json:"format"`
	ExportedAt time.Time `json:"exportedAt"`
	SessionID  string    `json:"sessionId"`
	Title      string    `json:"title"`
	TurnCount  int       `json:"turnCount"`
}

// Document is the exported file body. Exactly one of Session/Turns (raw) or
// Extraction (extracted) is populated.
type Document struct {
	Meta       Meta                  `json:"meta"`
	Session    *store.Session        `json:"session,omitempty"`
	Turns      []store.Turn          `json:"turns,omitempty"`
	Extraction map[string]Extraction `json:"extraction,omitempty"`
}

// Extraction is one granularity's previously computed result.
type Extraction struct {
	ExtractedAt time.Time `json:"extractedAt"`
	Output      string    `json:"output"`
}

// Builder assembles export documents from the repository.
type Builder struct {
	Repo *store.Repo
	now  func() time.Time
}

func NewBuilder(repo *store.Repo) *Builder {
	return &Builder{Repo: repo, now: time.Now}
}

func (b *Builder) meta(format string, s *store.Session) Meta {
	return Meta{
		Version:    Version,
		Format:     format,
		ExportedAt: b.now().UTC(),
		SessionID:  s.ID,
		Title:      s.Title,
		TurnCount:  s.TurnCount,
	}
}

// Raw exports the session row and its full ordered turn sequence.
func (b *Builder) Raw(ctx context.Context, sessionID string) (*Document, error) {
	s, err := b.Repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	turns, err := b.Repo.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &Document{Meta: b.meta(FormatRaw, s), Session: s, Turns: turns}, nil
}

// Extracted exports the previously computed extraction results. Kinds that
// were never run are omitted; a session with none at all is an error.
func (b *Builder) Extracted(ctx context.Context, sessionID string) (*Document, error) {
	s, err := b.Repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	results := map[string]Extraction{}
	for _, kind := range []string{store.KindMicro, store.KindMeso, store.KindMacro} {
		e, err := b.Repo.GetExtraction(ctx, sessionID, kind)
		if err != nil {
			return nil, err
		}
		if e != nil {
			results[kind] = Extraction{ExtractedAt: e.ExtractedAt, Output: e.Output}
		}
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("session %s has no extraction results", sessionID)
	}
	return &Document{Meta: b.meta(FormatExtracted, s), Extraction: results}, nil
}

// Marshal renders a document for download.
func Marshal(d *Document) ([]byte, error) {
	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return out, nil
}

// Filename names the downloaded file the way the widget did.
func Filename(sessionID, format string) string {
	return fmt.Sprintf("turnvault_%s_%s.json", sessionID, format)
}
