package gate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"esign-orchestrator/core/models"
)

// StaticConfirmer answers every prompt with the same value
type StaticConfirmer bool

// Confirm returns the static answer
func (s StaticConfirmer) Confirm(_ context.Context, _ Prompt) (bool, error) {
	return bool(s), nil
}

// PromptConfirmer asks on a terminal. Only "y" or "yes" approve.
type PromptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
	mu  sync.Mutex
}

// NewPromptConfirmer creates a terminal confirmer
func NewPromptConfirmer(in io.Reader, out io.Writer) *PromptConfirmer {
	return &PromptConfirmer{in: bufio.NewReader(in), out: out}
}

// Confirm prints the prompt and waits for an answer or ctx cancellation.
func (c *PromptConfirmer) Confirm(ctx context.Context, p Prompt) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "%s [y/N]: ", p.Message)

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(c.out)
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.line == "" {
			if a.err == io.EOF {
				return false, nil
			}
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

// PendingConfirmer parks prompts until Decide is called for their run.
// It backs confirmations that arrive through the REST API.
type PendingConfirmer struct {
	mu      sync.Mutex
	pending map[string]*pendingPrompt
}

type pendingPrompt struct {
	prompt Prompt
	answer chan bool
}

// NewPendingConfirmer creates an empty pending confirmer
func NewPendingConfirmer() *PendingConfirmer {
	return &PendingConfirmer{pending: make(map[string]*pendingPrompt)}
}

// Confirm blocks until Decide(p.RunID, ...) or ctx is done.
func (c *PendingConfirmer) Confirm(ctx context.Context, p Prompt) (bool, error) {
	pp := &pendingPrompt{prompt: p, answer: make(chan bool, 1)}

	c.mu.Lock()
	if _, exists := c.pending[p.RunID]; exists {
		c.mu.Unlock()
		return false, fmt.Errorf("run %s already awaits confirmation", p.RunID)
	}
	c.pending[p.RunID] = pp
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.pending[p.RunID] == pp {
			delete(c.pending, p.RunID)
		}
		c.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case ok := <-pp.answer:
		return ok, nil
	}
}

// Pending returns the prompt a run is waiting on, if any
func (c *PendingConfirmer) Pending(runID string) (Prompt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pp, ok := c.pending[runID]
	if !ok {
		return Prompt{}, false
	}
	return pp.prompt, true
}

// Decide answers the prompt a run is waiting on.
func (c *PendingConfirmer) Decide(runID string, approve bool) error {
	c.mu.Lock()
	pp, ok := c.pending[runID]
	if ok {
		delete(c.pending, runID)
	}
	c.mu.Unlock()
	if !ok {
		return models.ErrNoPendingGate
	}
	pp.answer <- approve
	return nil
}
