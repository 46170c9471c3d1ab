package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execEnhancer struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	SegmentID string `json:"segment_id"`
	Text      string `json:"text"`
	Speaker   string `json:"speaker,omitempty"`
}

type execResponse struct {
	Text string `json:"text"`
}

// NewExecEnhancer wraps an external command that reads a JSON request
// on stdin and writes a JSON response on stdout.
func NewExecEnhancer(command string) (Enhancer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse enhance command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("enhance command empty")
	}
	return &execEnhancer{cmd: args}, nil
}

func (e *execEnhancer) Enhance(ctx context.Context, req Request) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	input, err := json.Marshal(execRequest{
		SegmentID: req.SegmentID,
		Text:      Cleanup(req.Text),
		Speaker:   req.Speaker,
	})
	if err != nil {
		return Result{}, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return Result{}, fmt.Errorf("enhance exec command failed: %w", err)
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return Result{}, fmt.Errorf("decode enhance exec response: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return Result{}, fmt.Errorf("enhance exec returned empty text")
	}
	return Result{Text: resp.Text}, nil
}
