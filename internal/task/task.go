// Package task holds the to-do state container: the task list, the input
// buffer and the operations that mutate them.
package task

import (
	"strings"
	"sync/atomic"
)

// Task is one user-entered to-do item.
type Task struct {
	ID        int64    `json:"id"`
	Text      string   `json:"text"`
	Steps     []string `json:"steps"`
	Completed bool     `json:"completed"`
}

// New builds an incomplete task with no steps. It reports false when text is
// blank after trimming.
func New(id int64, text string) (Task, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Task{}, false
	}
	return Task{ID: id, Text: text, Steps: []string{}}, true
}

// HasSteps reports whether the task has been broken into sub-steps.
func (t Task) HasSteps() bool {
	return len(t.Steps) > 0
}

func (t Task) clone() Task {
	steps := make([]string, len(t.Steps))
	copy(steps, t.Steps)
	t.Steps = steps
	return t
}

// IDSource hands out task identifiers.
type IDSource interface {
	NextID() int64
}

// Counter is a monotonic IDSource. The zero value starts at 1.
type Counter struct {
	last atomic.Int64
}

// NextID returns the next identifier.
func (c *Counter) NextID() int64 {
	return c.last.Add(1)
}
