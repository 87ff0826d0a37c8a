package task

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kingrea/thinkpilot/internal/decompose"
)

// Board is the state container behind one to-do page: the task list and the
// input buffer. All mutations go through SetInput, Add, Toggle and
// ApplySteps, and each holds the board lock so a single writer touches the
// state at a time.
type Board struct {
	mu         sync.Mutex
	input      string
	list       List
	ids        IDSource
	decomposer decompose.Decomposer
}

// Option customizes Board construction.
type Option func(*Board)

// WithIDSource overrides the default monotonic counter.
func WithIDSource(ids IDSource) Option {
	return func(b *Board) {
		if ids != nil {
			b.ids = ids
		}
	}
}

// WithDecomposer installs the collaborator used by BreakIntoSteps.
func WithDecomposer(d decompose.Decomposer) Option {
	return func(b *Board) {
		if d != nil {
			b.decomposer = d
		}
	}
}

// NewBoard returns an empty board with a no-op decomposer.
func NewBoard(opts ...Option) *Board {
	b := &Board{
		list:       NewList(),
		ids:        &Counter{},
		decomposer: decompose.Nop{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Snapshot is an immutable view of the board handed to renderers.
type Snapshot struct {
	Input string `json:"input"`
	Tasks []Task `json:"tasks"`
}

// Snapshot captures the current input buffer and task list.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{Input: b.input, Tasks: b.list.Tasks()}
}

// Input returns the current input buffer.
func (b *Board) Input() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.input
}

// Len returns the number of tasks on the board.
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.list.Len()
}

// SetInput mirrors the input control. The value is stored as typed.
func (b *Board) SetInput(value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.input = value
}

// Add appends a task built from the input buffer and clears the buffer.
// Blank input is ignored: nothing changes and Add reports false.
func (b *Board) Add() (Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if strings.TrimSpace(b.input) == "" {
		return Task{}, false
	}
	t, ok := New(b.ids.NextID(), b.input)
	if !ok {
		return Task{}, false
	}
	b.list = b.list.Append(t)
	b.input = ""
	return t, true
}

// Toggle flips the completion flag of the task with the given id.
func (b *Board) Toggle(id int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	next, ok := b.list.Toggle(id)
	if ok {
		b.list = next
	}
	return ok
}

// RequestSteps asks the decomposer to split the task with the given id into
// sub-steps. It does not touch the board, so callers may run it away from
// the writer and commit the result with ApplySteps. Unknown ids yield no
// steps and no error.
func (b *Board) RequestSteps(ctx context.Context, id int64) ([]string, error) {
	b.mu.Lock()
	t, ok := b.list.Find(id)
	d := b.decomposer
	b.mu.Unlock()
	if !ok {
		return nil, nil
	}
	steps, err := d.Decompose(ctx, t.Text)
	if err != nil {
		return nil, fmt.Errorf("task: break %d into steps: %w", id, err)
	}
	return steps, nil
}

// ApplySteps replaces the steps of the task with the given id. Blank entries
// are dropped; an empty result leaves the board untouched and reports false.
func (b *Board) ApplySteps(id int64, steps []string) bool {
	cleaned := cleanSteps(steps)
	if len(cleaned) == 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	next, ok := b.list.SetSteps(id, cleaned)
	if ok {
		b.list = next
	}
	return ok
}

// BreakIntoSteps requests steps for a task and applies them. With the
// default no-op decomposer this never changes the board.
func (b *Board) BreakIntoSteps(ctx context.Context, id int64) error {
	steps, err := b.RequestSteps(ctx, id)
	if err != nil {
		return err
	}
	b.ApplySteps(id, steps)
	return nil
}

func cleanSteps(steps []string) []string {
	out := make([]string, 0, len(steps))
	for _, step := range steps {
		if trimmed := strings.TrimSpace(step); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
