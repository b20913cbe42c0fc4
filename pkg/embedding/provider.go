package embedding

import "context"

type TaskType string

const (
	TaskRetrievalDocument TaskType = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    TaskType = "RETRIEVAL_QUERY"
)

// EmbeddingProvider defines the interface for generating text embeddings.
// Embed returns one vector per input text, each of length Dimension().
type EmbeddingProvider interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string, task TaskType) ([][]float32, error)
}
