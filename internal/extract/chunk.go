package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// Marker kinds: the granularity of the heading lines a log is split at.
const (
	MarkerTurn    = "turn"
	MarkerDay     = "day"
	MarkerEpisode = "episode"
)

var markerPatterns = map[string]*regexp.Regexp{
	MarkerTurn:    regexp.MustCompile(`(?m)^## \[턴 \d+\]`),
	MarkerDay:     regexp.MustCompile(`(?m)^## \[\d+일차\]`),
	MarkerEpisode: regexp.MustCompile(`(?m)^## \[에피소드 \d+\]`),
}

// KindForMarker maps a marker kind to its extraction-result kind tag.
func KindForMarker(marker string) string {
	switch marker {
	case MarkerTurn:
		return "micro"
	case MarkerDay:
		return "meso"
	case MarkerEpisode:
		return "macro"
	default:
		return marker
	}
}

// ChunkByMarker splits text at each marker of the given kind, keeping the
// marker attached to its following content (a lookahead split). Text before
// the first marker becomes its own chunk. Without any marker the whole
// trimmed input is a single chunk.
func ChunkByMarker(text, markerKind string) ([]string, error) {
	re, ok := markerPatterns[markerKind]
	if !ok {
		return nil, fmt.Errorf("unknown marker kind %q", markerKind)
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	starts := re.FindAllStringIndex(trimmed, -1)
	if len(starts) == 0 {
		return []string{trimmed}, nil
	}

	var chunks []string
	if lead := strings.TrimSpace(trimmed[:starts[0][0]]); lead != "" {
		chunks = append(chunks, lead)
	}
	for i, s := range starts {
		end := len(trimmed)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		chunks = append(chunks, strings.TrimSpace(trimmed[s[0]:end]))
	}
	return chunks, nil
}

// Batch groups consecutive chunks into batches of size, preserving order.
// Size defaults to 10 and is clamped to [1,100].
func Batch(chunks []string, size int) [][]string {
	size = clampSize(size)
	var batches [][]string
	for start := 0; start < len(chunks); start += size {
		end := start + size
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[start:end])
	}
	return batches
}
