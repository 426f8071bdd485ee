package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Extraction kinds, one live result per (session, kind).
const (
	KindMicro = "micro"
	KindMeso  = "meso"
	KindMacro = "macro"
)

// Session is a named, ordered collection of turns sharing a subject.
type Session struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Title     string    `json:"title"`
	TurnCount int       `json:"turnCount"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Turn is one unit of narrative content, immutable once written except for
// re-save under the same turn number.
type Turn struct {
	SessionID string    `json:"sessionId"`
	Number    int       `json:"turn"`
	HTML      string    `json:"html"`
	Text      string    `json:"text"`
	SavedAt   time.Time `json:"savedAt"`
}

// Extraction holds one extraction run's accumulated output.
type Extraction struct {
	SessionID   string    `json:"sessionId"`
	Kind        string    `json:"kind"`
	ChunkCount  int       `json:"chunkCount"`
	BatchSize   int       `json:"batchSize"`
	Output      string    `json:"output"`
	ExtractedAt time.Time `json:"extractedAt"`
}

// DocumentAPI is the slice of the document-store client the repository needs.
type DocumentAPI interface {
	Get(ctx context.Context, collection, id string) (map[string]interface{}, error)
	Set(ctx context.Context, collection, id string, fields map[string]interface{}) error
	List(ctx context.Context, collection, orderBy string, desc bool, limit int) ([]map[string]interface{}, error)
}

// Repo maps sessions, turns and extractions onto document collections.
type Repo struct {
	Docs DocumentAPI
}

func NewRepo(docs DocumentAPI) *Repo { return &Repo{Docs: docs} }

func turnsCollection(sessionID string) string { return "sessions/" + sessionID + "/turns" }

// ExtractionID is the synthetic key combining session id and extraction kind.
func ExtractionID(sessionID, kind string) string { return sessionID + "_" + kind }

// GetSession returns nil when the session does not exist.
func (r *Repo) GetSession(ctx context.Context, id string) (*Session, error) {
	fields, err := r.Docs.Get(ctx, "sessions", id)
	if err != nil || fields == nil {
		return nil, err
	}
	s := sessionFromFields(id, fields)
	return &s, nil
}

// ListSessions returns all sessions sorted by last-update time descending.
// The sort happens client-side; a missing timestamp sorts as the epoch.
func (r *Repo) ListSessions(ctx context.Context) ([]Session, error) {
	docs, err := r.Docs.List(ctx, "sessions", "", false, 0)
	if err != nil {
		return nil, err
	}
	sessions := make([]Session, 0, len(docs))
	for _, fields := range docs {
		id, _ := fields["_id"].(string)
		sessions = append(sessions, sessionFromFields(id, fields))
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// CreateSession writes an empty session row. Turns added later bump the
// count; the id is the caller's to choose.
func (r *Repo) CreateSession(ctx context.Context, id, subject, title string) error {
	err := r.Docs.Set(ctx, "sessions", id, map[string]interface{}{
		"subject":   subject,
		"title":     title,
		"turnCount": 0,
		"createdAt": ServerTimestamp,
		"updatedAt": ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}
	return nil
}

// SaveTurn persists one turn and upserts its session: created on the first
// turn, turn count and update time bumped on every subsequent one.
func (r *Repo) SaveTurn(ctx context.Context, subject, title string, t Turn) error {
	if t.Number < 1 {
		return fmt.Errorf("turn number must be >= 1, got %d", t.Number)
	}
	err := r.Docs.Set(ctx, turnsCollection(t.SessionID), strconv.Itoa(t.Number), map[string]interface{}{
		"sessionId": t.SessionID,
		"turn":      t.Number,
		"html":      t.HTML,
		"text":      t.Text,
		"savedAt":   ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("save turn %d: %w", t.Number, err)
	}

	existing, err := r.GetSession(ctx, t.SessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", t.SessionID, err)
	}
	fields := map[string]interface{}{
		"subject":   subject,
		"title":     title,
		"turnCount": t.Number,
		"createdAt": ServerTimestamp,
		"updatedAt": ServerTimestamp,
	}
	if existing != nil {
		fields["createdAt"] = existing.CreatedAt
		if existing.TurnCount > t.Number {
			fields["turnCount"] = existing.TurnCount
		}
		if subject == "" {
			fields["subject"] = existing.Subject
		}
		if title == "" {
			fields["title"] = existing.Title
		}
	}
	if err := r.Docs.Set(ctx, "sessions", t.SessionID, fields); err != nil {
		return fmt.Errorf("upsert session %s: %w", t.SessionID, err)
	}
	return nil
}

// ListTurns returns a session's turns ordered by turn number.
func (r *Repo) ListTurns(ctx context.Context, sessionID string) ([]Turn, error) {
	docs, err := r.Docs.List(ctx, turnsCollection(sessionID), "turn", false, 0)
	if err != nil {
		return nil, err
	}
	turns := make([]Turn, 0, len(docs))
	for _, fields := range docs {
		turns = append(turns, Turn{
			SessionID: str(fields, "sessionId"),
			Number:    int(i64(fields, "turn")),
			HTML:      str(fields, "html"),
			Text:      str(fields, "text"),
			SavedAt:   ts(fields, "savedAt"),
		})
	}
	sort.SliceStable(turns, func(i, j int) bool { return turns[i].Number < turns[j].Number })
	return turns, nil
}

// SaveExtraction overwrites the live result for (session, kind).
func (r *Repo) SaveExtraction(ctx context.Context, e Extraction) error {
	return r.Docs.Set(ctx, "extractions", ExtractionID(e.SessionID, e.Kind), map[string]interface{}{
		"sessionId":   e.SessionID,
		"kind":        e.Kind,
		"chunkCount":  e.ChunkCount,
		"batchSize":   e.BatchSize,
		"output":      e.Output,
		"extractedAt": ServerTimestamp,
	})
}

// GetExtraction returns nil when no result exists for (session, kind).
func (r *Repo) GetExtraction(ctx context.Context, sessionID, kind string) (*Extraction, error) {
	fields, err := r.Docs.Get(ctx, "extractions", ExtractionID(sessionID, kind))
	if err != nil || fields == nil {
		return nil, err
	}
	return &Extraction{
		SessionID:   str(fields, "sessionId"),
		Kind:        str(fields, "kind"),
		ChunkCount:  int(i64(fields, "chunkCount")),
		BatchSize:   int(i64(fields, "batchSize")),
		Output:      str(fields, "output"),
		ExtractedAt: ts(fields, "extractedAt"),
	}, nil
}

func sessionFromFields(id string, fields map[string]interface{}) Session {
	return Session{
		ID:        id,
		Subject:   str(fields, "subject"),
		Title:     str(fields, "title"),
		TurnCount: int(i64(fields, "turnCount")),
		CreatedAt: ts(fields, "createdAt"),
		UpdatedAt: ts(fields, "updatedAt"),
	}
}

func str(fields map[string]interface{}, key string) string {
	s, _ := fields[key].(string)
	return s
}

func i64(fields map[string]interface{}, key string) int64 {
	switch n := fields[key].(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func ts(fields map[string]interface{}, key string) time.Time {
	t, _ := fields[key].(time.Time)
	return t
}
