// Package render builds the page shell around a turn's markup: fixed
// stylesheet, the caller's markup injected verbatim, and the dashboard block
// rendered into its target. Rendering triggers a best-effort save.
package render

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"log"

	"github.com/minjae-ko/turnvault/internal/convert"
)

// pageTemplate is the fixed shell. The markup is injected verbatim by
// contract: the widget owns its own output and nothing is sanitized.
const pageTemplate = `<!DOCTYPE html>
<html lang="ko">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { margin: 0; background: #14151a; color: #e8e6e3; font-family: "Pretendard", "Noto Sans KR", sans-serif; }
.tv-shell { max-width: 760px; margin: 0 auto; padding: 32px 20px 64px; line-height: 1.75; }
.tv-shell h1 { font-size: 1.6rem; border-bottom: 1px solid #3a3c44; padding-bottom: 8px; }
.tv-shell h2 { font-size: 1.1rem; color: #b8b4ae; font-weight: 500; }
.tv-shell blockquote { margin: 12px 0; padding: 8px 16px; border-left: 3px solid #5a8dee; background: #1c1e25; }
.tv-shell ol { padding-left: 24px; }
.tv-dashboard { margin-top: 24px; padding: 16px; background: #1c1e25; border-radius: 8px; font-size: 0.9rem; }
.tv-dashboard h5 { margin: 8px 0 4px; color: #5a8dee; }
.tv-dashboard .row { display: flex; justify-content: space-between; border-bottom: 1px dotted #2c2e36; }
.tv-progress { height: 6px; background: #2c2e36; border-radius: 3px; margin-top: 12px; }
.tv-progress .bar { height: 100%; background: #5a8dee; border-radius: 3px; }
</style>
</head>
<body>
<div class="tv-shell" id="session-{{.ID}}">
{{.Markup}}
{{if .Dashboard}}<div class="tv-dashboard">
{{range .Dashboard.Sections}}<h5>{{.Title}}</h5>
{{range .Items}}<div class="row"><span>{{.Label}}</span><span>{{.Value}}</span></div>
{{end}}{{end}}{{with .Dashboard.Progress}}<div class="tv-progress" title="{{.Label}}"><div class="bar" style="width: {{printf "%.0f" .Percent}}%"></div></div>
{{end}}</div>
{{end}}</div>
</body>
</html>
`

// Saver persists rendered markup. Save failures are logged, never surfaced.
type Saver func(ctx context.Context, id, markup string) error

type Shell struct {
	Saver  Saver
	Logger *log.Logger
	tmpl   *template.Template
	// saved signals save completion, for callers that need to wait.
	saved chan error
}

// NewShell creates a shell renderer
func NewShell(saver Saver) *Shell {
	return &Shell{
		Saver:  saver,
		Logger: log.New(log.Writer(), "[RENDER] ", log.LstdFlags),
		tmpl:   template.Must(template.New("shell").Parse(pageTemplate)),
		saved:  make(chan error, 1),
	}
}

type pageData struct {
	ID        string
	Title     string
	Markup    template.HTML
	Dashboard *convert.Dashboard
}

// Render writes the shell page and triggers the best-effort save. A missing
// or malformed dashboard block renders no dashboard, silently.
func (s *Shell) Render(ctx context.Context, w io.Writer, markup, title, id string) error {
	dash, err := convert.ParseDashboard(markup)
	if err != nil {
		s.Logger.Printf("dashboard block skipped: %v", err)
		dash = nil
	}
	data := pageData{
		ID:        id,
		Title:     title,
		Markup:    template.HTML(markup),
		Dashboard: dash,
	}
	if err := s.tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render shell: %w", err)
	}

	if s.Saver != nil {
		go func() {
			err := s.Saver(context.WithoutCancel(ctx), id, markup)
			if err != nil {
				s.Logger.Printf("save after render failed for %s: %v", id, err)
			}
			select {
			case s.saved <- err:
			default:
			}
		}()
	}
	return nil
}

// WaitSaved blocks until the most recent render's save settles. Test hook
// and CLI convenience; the render path itself never waits.
func (s *Shell) WaitSaved() error { return <-s.saved }
