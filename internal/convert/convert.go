// Package convert re-serializes rendered turn markup into the flat turn-log
// text format consumed by the extraction pipeline. The conversion is
// order-preserving and lossy: only recognized section types survive.
package convert

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Dashboard is the embedded status block shape, carried in markup as a
// <script type="application/json" id="dashboard-data"> element.
type Dashboard struct {
	Sections []DashboardSection `json:"sections"`
	Progress *DashboardProgress `json:"progress,omitempty"`
}

type DashboardSection struct {
	Title string          `json:"title"`
	Items []DashboardItem `json:"items"`
}

type DashboardItem struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type DashboardProgress struct {
	Label   string  `json:"label"`
	Percent float64 `json:"percent"`
}

// labelKeys shortens dashboard labels to the fixed 2-3 letter dictionary
// shared with the extraction prompt. Unknown labels pass through unchanged.
var labelKeys = map[string]string{
	"이름":  "nm",
	"레벨":  "lv",
	"체력":  "hp",
	"정신력": "mn",
	"소지금": "gld",
	"호감도": "aff",
	"위치":  "loc",
	"날짜":  "dt",
	"시간":  "tm",
	"진행도": "prg",
	"상태":  "st",
}

// LabelKey returns the short dictionary key for a dashboard label.
func LabelKey(label string) string {
	if k, ok := labelKeys[strings.TrimSpace(label)]; ok {
		return k
	}
	return strings.TrimSpace(label)
}

// ParseDashboard scans markup for the embedded dashboard JSON block. A
// missing block is (nil, nil); a malformed one is an error.
func ParseDashboard(markup string) (*Dashboard, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}
	node := findDashboardScript(root)
	if node == nil {
		return nil, nil
	}
	var d Dashboard
	if err := json.Unmarshal([]byte(rawText(node)), &d); err != nil {
		return nil, fmt.Errorf("failed to parse dashboard block: %w", err)
	}
	return &d, nil
}

func findDashboardScript(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "script" &&
		attr(n, "type") == "application/json" && attr(n, "id") == "dashboard-data" {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findDashboardScript(child); found != nil {
			return found
		}
	}
	return nil
}

// TurnMarker formats the heading line that delimits one turn in the log.
func TurnMarker(turn int) string { return fmt.Sprintf("## [턴 %d]", turn) }

// TurnLog converts one turn's rendered markup into its turn-log text block.
func TurnLog(markup string, turn int) (string, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("failed to parse markup: %w", err)
	}

	c := &converter{}
	c.line(TurnMarker(turn))
	c.walk(root)
	return strings.TrimRight(c.sb.String(), "\n") + "\n", nil
}

type converter struct {
	sb            strings.Builder
	headerEmitted bool
	pendingTitle  string
}

func (c *converter) line(s string) {
	c.sb.WriteString(s)
	c.sb.WriteByte('\n')
}

// walk visits nodes in document order, emitting recognized sections and
// descending through everything else.
func (c *converter) walk(n *html.Node) {
	if n.Type == html.ElementNode && c.emit(n) {
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.walk(child)
	}
}

// emit handles one recognized element; it reports whether the node was
// consumed (its subtree must not be walked again).
func (c *converter) emit(n *html.Node) bool {
	switch n.Data {
	case "h1":
		if !c.headerEmitted {
			c.pendingTitle = innerText(n)
		}
		return true
	case "h2":
		if !c.headerEmitted && c.pendingTitle != "" {
			c.line("# " + c.pendingTitle + " - " + innerText(n))
			c.line("")
			c.headerEmitted = true
			c.pendingTitle = ""
		}
		return true
	case "p":
		if t := innerText(n); t != "" {
			c.flushTitle()
			c.line(t)
			c.line("")
		}
		return true
	case "blockquote":
		c.flushTitle()
		for _, l := range strings.Split(innerText(n), "\n") {
			if l = strings.TrimSpace(l); l != "" {
				c.line("> " + l)
			}
		}
		c.line("")
		return true
	case "h3", "h4":
		c.flushTitle()
		if t := innerText(n); t != "" {
			c.line("### " + t)
			c.line("")
		}
		return true
	case "ol":
		c.flushTitle()
		c.line("[선택지]")
		i := 0
		for li := n.FirstChild; li != nil; li = li.NextSibling {
			if li.Type == html.ElementNode && li.Data == "li" {
				i++
				c.line(fmt.Sprintf("%d. %s", i, innerText(li)))
			}
		}
		c.line("")
		return true
	case "script":
		if attr(n, "type") == "application/json" && attr(n, "id") == "dashboard-data" {
			c.flushTitle()
			c.dashboard(rawText(n))
			return true
		}
		return true // other scripts are never content
	}
	return false
}

// flushTitle emits a title that never found its subtitle.
func (c *converter) flushTitle() {
	if c.headerEmitted || c.pendingTitle == "" {
		return
	}
	c.line("# " + c.pendingTitle)
	c.line("")
	c.headerEmitted = true
	c.pendingTitle = ""
}

func (c *converter) dashboard(raw string) {
	var d Dashboard
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return // malformed dashboard blocks are skipped, not fatal
	}
	c.line("[상태]")
	for _, sec := range d.Sections {
		if sec.Title != "" {
			c.line(sec.Title + ":")
		}
		for _, it := range sec.Items {
			c.line("  " + LabelKey(it.Label) + ": " + it.Value)
		}
	}
	if d.Progress != nil {
		c.line(fmt.Sprintf("  %s: %.0f%%", LabelKey(d.Progress.Label), d.Progress.Percent))
	}
	c.line("---")
	c.line("")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// rawText concatenates the node's text children verbatim, for embedded JSON.
func rawText(n *html.Node) string {
	var sb strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			sb.WriteString(child.Data)
		}
	}
	return sb.String()
}

// innerText collects the node's text content with whitespace collapsed
// within lines; <br> becomes a newline so quoted blocks keep their lines.
func innerText(n *html.Node) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(m *html.Node) {
		switch {
		case m.Type == html.TextNode:
			sb.WriteString(m.Data)
		case m.Type == html.ElementNode && m.Data == "br":
			sb.WriteByte('\n')
		}
		for child := m.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	visit(n)

	lines := strings.Split(sb.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
