package enhance

import "context"

type mockEnhancer struct{}

// NewMockEnhancer returns an enhancer that applies only the
// deterministic cleanup pass. Useful for development and tests without
// an external model.
func NewMockEnhancer() Enhancer { return &mockEnhancer{} }

func (m *mockEnhancer) Enhance(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{Text: Cleanup(req.Text)}, nil
}
