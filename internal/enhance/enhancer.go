// Package enhance rewrites recognized text into courtroom-ready prose:
// deterministic Spanish cleanup plus an optional external model invoked
// per segment.
package enhance

import (
	"context"
	"fmt"

	"github.com/actalabs/acta-core/internal/config"
)

// Request carries one finalized segment to the enhancer.
type Request struct {
	SegmentID string
	Text      string
	Speaker   string
}

// Result holds the enhanced rendition.
type Result struct {
	Text string
}

// Enhancer produces an improved rendition of recognized text. Callers
// treat failures as advisory: the recognized text stays displayable.
type Enhancer interface {
	Enhance(ctx context.Context, req Request) (Result, error)
}

// New selects the enhancer backend from config.
func New(cfg config.EnhanceConfig) (Enhancer, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockEnhancer(), nil
	case "exec":
		return NewExecEnhancer(cfg.Command)
	default:
		return nil, fmt.Errorf("unknown enhance mode %q", cfg.Mode)
	}
}
