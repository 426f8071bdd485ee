package extract

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/minjae-ko/turnvault/provider"
)

var llmCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "turnvault_llm_calls_total",
	Help: "Extraction LLM calls by outcome.",
}, []string{"outcome"})

// Options controls one pipeline run.
type Options struct {
	Marker    string        // turn, day or episode
	BatchSize int           // chunks per LLM call, clamped to [1,100]
	Pace      time.Duration // delay between batches, never after the last
	// ContinueOnError records a failed batch and moves on instead of
	// aborting the remaining sequence.
	ContinueOnError bool
}

// BatchResult records one batch's outcome in sequence order.
type BatchResult struct {
	Index  int
	Chunks int
	Output string
	Err    error
}

// Result is one completed pipeline run.
type Result struct {
	ChunkCount int
	BatchSize  int
	Batches    []BatchResult
	// Output is the successful batch outputs joined with ",\n".
	Output string
}

// Pipeline runs chunked extraction calls in strict sequence. Batches are
// never parallel: the pacing delay is a rate-limit guard for the provider.
type Pipeline struct {
	Provider provider.Provider
	Logger   *log.Logger
	sleep    func(time.Duration)
}

// New creates a pipeline around an LLM provider
func New(p provider.Provider) *Pipeline {
	return &Pipeline{
		Provider: p,
		Logger:   log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags),
		sleep:    time.Sleep,
	}
}

// Run splits fullText at the marker kind, batches the chunks and calls the
// provider once per batch. With ContinueOnError unset the first failed batch
// aborts the rest; set, the failure is recorded and the sequence continues.
func (pl *Pipeline) Run(ctx context.Context, fullText string, opts Options) (*Result, error) {
	chunks, err := ChunkByMarker(fullText, opts.Marker)
	if err != nil {
		return nil, err
	}
	batches := Batch(chunks, opts.BatchSize)

	res := &Result{ChunkCount: len(chunks), BatchSize: clampSize(opts.BatchSize)}
	var outputs []string
	for i, batch := range batches {
		if i > 0 && opts.Pace > 0 {
			pl.sleep(opts.Pace)
		}
		text := wrapBatch(strings.Join(batch, "\n\n"))
		out, err := pl.Provider.Call(ctx, extractionPrompt, text)
		br := BatchResult{Index: i, Chunks: len(batch), Output: out, Err: err}
		res.Batches = append(res.Batches, br)
		if err != nil {
			llmCalls.WithLabelValues("error").Inc()
			pl.Logger.Printf("batch %d/%d failed: %v", i+1, len(batches), err)
			if !opts.ContinueOnError {
				return res, fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
			}
			continue
		}
		llmCalls.WithLabelValues("ok").Inc()
		outputs = append(outputs, out)
	}
	res.Output = strings.Join(outputs, ",\n")
	return res, nil
}

// ArrayLiteral wraps joined batch outputs in an array literal, the shape the
// download path writes to disk.
func ArrayLiteral(joined string) string {
	return "[\n" + joined + "\n]"
}

func clampSize(size int) int {
	if size == 0 {
		size = 10
	}
	if size < 1 {
		size = 1
	}
	if size > 100 {
		size = 100
	}
	return size
}
