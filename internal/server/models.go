package server

import "github.com/minjae-ko/turnvault/internal/extract"

type AuthLoginRequest struct {
	Password string `json:"password"`
}

type CreateSessionRequest struct {
	Subject string `json:"subject"`
	Title   string `json:"title"`
}

type SaveTurnRequest struct {
	Turn    int    `json:"turn"`
	Subject string `json:"subject"`
	Title   string `json:"title"`
	HTML    string `json:"html"`
}

type ExtractRequest struct {
	Marker          string `json:"marker"` // turn, day or episode
	BatchSize       int    `json:"batch_size"`
	ContinueOnError bool   `json:"continue_on_error"`
}

type ExtractResponse struct {
	Kind       string        `json:"kind"`
	ChunkCount int           `json:"chunk_count"`
	BatchSize  int           `json:"batch_size"`
	Batches    []BatchStatus `json:"batches"`
	Output     string        `json:"output"`
}

type BatchStatus struct {
	Index  int    `json:"index"`
	Chunks int    `json:"chunks"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

func batchStatuses(batches []extract.BatchResult) []BatchStatus {
	out := make([]BatchStatus, 0, len(batches))
	for _, b := range batches {
		s := BatchStatus{Index: b.Index, Chunks: b.Chunks, OK: b.Err == nil}
		if b.Err != nil {
			s.Error = b.Err.Error()
		}
		out = append(out, s)
	}
	return out
}
