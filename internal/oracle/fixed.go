package oracle

import "context"

// Fixed returns the same assessment for every input.
type Fixed struct {
	assessment Assessment
}

// NewFixed builds a Fixed oracle scoring everything as score.
func NewFixed(score, threshold float64) *Fixed {
	return &Fixed{assessment: NewAssessment(score, threshold, "fixed")}
}

// Assess implements Oracle.
func (f *Fixed) Assess(ctx context.Context, _ []byte) (Assessment, error) {
	if err := ctx.Err(); err != nil {
		return Assessment{}, classifyContextError(err)
	}
	return f.assessment, nil
}

// Check implements HealthChecker.
func (f *Fixed) Check(context.Context) error { return nil }
