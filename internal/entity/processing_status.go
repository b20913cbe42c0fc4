package entity

// ProcessingStatus is the pipeline state of a single document.
type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusParsing   ProcessingStatus = "parsing"
	StatusChunking  ProcessingStatus = "chunking"
	StatusEmbedding ProcessingStatus = "embedding"
	StatusIndexing  ProcessingStatus = "indexing"
	StatusReady     ProcessingStatus = "ready"
	StatusError     ProcessingStatus = "error"
)

var pipelineOrder = []ProcessingStatus{
	StatusPending,
	StatusParsing,
	StatusChunking,
	StatusEmbedding,
	StatusIndexing,
	StatusReady,
}

func (s ProcessingStatus) IsValid() bool {
	return s == StatusError || s.position() >= 0
}

func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusError
}

// IsStage reports whether a worker is (or should be) running for this status.
func (s ProcessingStatus) IsStage() bool {
	switch s {
	case StatusParsing, StatusChunking, StatusEmbedding, StatusIndexing:
		return true
	}
	return false
}

func (s ProcessingStatus) position() int {
	for i, st := range pipelineOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the status that follows s along the pipeline.
func (s ProcessingStatus) Next() (ProcessingStatus, bool) {
	pos := s.position()
	if pos < 0 || pos == len(pipelineOrder)-1 {
		return "", false
	}
	return pipelineOrder[pos+1], true
}

// CanTransitionTo allows exactly one step forward, or a move into error from any non-terminal status.
func (s ProcessingStatus) CanTransitionTo(next ProcessingStatus) bool {
	if next == StatusError {
		return !s.IsTerminal()
	}
	n, ok := s.Next()
	return ok && n == next
}

// CanReingest reports whether an explicit reprocess may reset the document to pending.
func (s ProcessingStatus) CanReingest() bool {
	return s.IsTerminal()
}
