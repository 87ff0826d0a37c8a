package task

// List is an append-only, insertion-ordered sequence of tasks. Operations
// return a new List and never modify the receiver's backing array, so a List
// value handed to a renderer stays stable.
type List struct {
	items []Task
}

// NewList returns a list holding copies of the given tasks.
func NewList(tasks ...Task) List {
	items := make([]Task, len(tasks))
	for i := range tasks {
		items[i] = tasks[i].clone()
	}
	return List{items: items}
}

// Len returns the number of tasks.
func (l List) Len() int {
	return len(l.items)
}

// Tasks returns a copy of the tasks in insertion order.
func (l List) Tasks() []Task {
	out := make([]Task, len(l.items))
	for i := range l.items {
		out[i] = l.items[i].clone()
	}
	return out
}

// At returns the task at index i.
func (l List) At(i int) Task {
	return l.items[i].clone()
}

// Find returns the task with the given id.
func (l List) Find(id int64) (Task, bool) {
	idx := l.indexOf(id)
	if idx < 0 {
		return Task{}, false
	}
	return l.items[idx].clone(), true
}

// Append returns a new list with t added at the end.
func (l List) Append(t Task) List {
	items := make([]Task, len(l.items), len(l.items)+1)
	copy(items, l.items)
	items = append(items, t.clone())
	return List{items: items}
}

// Toggle returns a new list where the task with the given id has its
// completion flag inverted. Unknown ids leave the list unchanged and report
// false.
func (l List) Toggle(id int64) (List, bool) {
	return l.update(id, func(t *Task) {
		t.Completed = !t.Completed
	})
}

// SetSteps returns a new list where the task with the given id has its steps
// replaced.
func (l List) SetSteps(id int64, steps []string) (List, bool) {
	return l.update(id, func(t *Task) {
		t.Steps = make([]string, len(steps))
		copy(t.Steps, steps)
	})
}

func (l List) update(id int64, fn func(*Task)) (List, bool) {
	idx := l.indexOf(id)
	if idx < 0 {
		return l, false
	}
	items := make([]Task, len(l.items))
	copy(items, l.items)
	updated := items[idx].clone()
	fn(&updated)
	items[idx] = updated
	return List{items: items}, true
}

func (l List) indexOf(id int64) int {
	for i := range l.items {
		if l.items[i].ID == id {
			return i
		}
	}
	return -1
}
