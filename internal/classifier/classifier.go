package classifier

import (
	"context"
	"math/rand"
	"sync"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// Prediction is the classifier verdict for an uploaded photo.
type Prediction struct {
	Category   domain.IssueCategory
	Confidence float64
	Scores     map[domain.IssueCategory]float64
}

// Classifier tags a photo with a coarse issue category. Implementations are
// untrusted oracles: the result carries no accuracy guarantee.
type Classifier interface {
	Predict(ctx context.Context, image []byte) (Prediction, error)
}

// MockClassifier returns random normalized scores. It stands in for a real
// model until one is wired behind the same interface. rand.Rand is not safe
// for concurrent use, so draws are serialized behind the mutex.
type MockClassifier struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockClassifier builds a stub classifier from the given seed source.
func NewMockClassifier(src rand.Source) *MockClassifier {
	return &MockClassifier{rng: rand.New(src)}
}

// Predict scores every category with a random weight, normalizes the weights
// to sum to one, and reports the highest-scoring category.
func (c *MockClassifier) Predict(_ context.Context, _ []byte) (Prediction, error) {
	scores := make(map[domain.IssueCategory]float64, 4)
	total := 0.0
	c.mu.Lock()
	for _, category := range domain.Categories() {
		score := 0.1 + c.rng.Float64()*0.8
		scores[category] = score
		total += score
	}
	c.mu.Unlock()

	best := domain.CategoryOther
	bestScore := -1.0
	for _, category := range domain.Categories() {
		scores[category] /= total
		if scores[category] > bestScore {
			best = category
			bestScore = scores[category]
		}
	}

	return Prediction{
		Category:   best,
		Confidence: bestScore,
		Scores:     scores,
	}, nil
}
