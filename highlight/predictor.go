package highlight

import (
	"context"

	"github.com/onnwee/highlight-tender/backend/dataset"
)

// Candidate is one highlight range proposed by a predictor.
type Candidate struct {
	Start       int
	End         int
	Probability float64
}

// Predictor proposes up to limit highlight ranges for a chat dataset, ordered
// by descending probability. Implementations are interchangeable; the service
// treats prediction as opaque.
type Predictor interface {
	Predict(ctx context.Context, data *dataset.ChatData, limit int) ([]Candidate, error)
}
