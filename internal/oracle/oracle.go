package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"

	"provenance/internal/services"
)

// DefaultThreshold is the score at or above which content is considered authentic.
const DefaultThreshold = 50.0

var (
	// ErrUnavailable reports that the classifier could not be reached or is not ready.
	ErrUnavailable = fmt.Errorf("oracle %w", services.ErrUnavailable)
	// ErrTimeout reports that the classifier did not answer within the deadline.
	ErrTimeout = fmt.Errorf("oracle %w", services.ErrTimeout)
	// ErrUnsupportedFormat reports that the classifier answered but could not score the content.
	ErrUnsupportedFormat = errors.New("oracle unsupported format")
)

// Assessment is a bounded authenticity score and the verdict derived from it.
type Assessment struct {
	Score       float64 `json:"score"`
	IsAuthentic bool    `json:"is_authentic"`
	Model       string  `json:"model,omitempty"`
}

// Oracle scores raw content bytes.
type Oracle interface {
	Assess(ctx context.Context, data []byte) (Assessment, error)
}

// HealthChecker is implemented by oracles that can report readiness without scoring.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// NewAssessment clamps score into [0, 100] and derives the verdict.
func NewAssessment(score, threshold float64, model string) Assessment {
	score = ClampScore(score)
	return Assessment{
		Score:       score,
		IsAuthentic: score >= threshold,
		Model:       model,
	}
}

// ClampScore bounds score to [0, 100]; NaN maps to 0.
func ClampScore(score float64) float64 {
	switch {
	case math.IsNaN(score), score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}
