// internal/tui/app.go
//
// This is the terminal front-end for ThinkPilot.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: the App below, which wraps a task.Board
// 2. Update: turns key presses into board operations
// 3. View: renders a board snapshot to a string
//
// The flow is: User Input -> Message -> Update -> Board mutation -> View -> Screen

package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/thinkpilot/internal/logbook"
	"github.com/kingrea/thinkpilot/internal/logging"
	"github.com/kingrea/thinkpilot/internal/task"
)

// appState represents which "screen" we're on
type appState int

const (
	stateLanding appState = iota // ThinkPilot title screen
	stateTodo                    // Magic ToDo page
)

type focusArea int

const (
	focusInput focusArea = iota
	focusList
)

// stepsResultMsg carries a decomposer reply back to Update, which is the
// only place the board is written.
type stepsResultMsg struct {
	id    int64
	steps []string
	err   error
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithBoard runs the TUI against an existing board.
func WithBoard(board *task.Board) AppOption {
	return func(a *App) {
		if board != nil {
			a.board = board
		}
	}
}

// WithLogbook records board activity in the session journal.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

// WithLogger overrides the diagnostic logger.
func WithLogger(l *logging.Logger) AppOption {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithContext sets the context handed to decomposer calls.
func WithContext(ctx context.Context) AppOption {
	return func(a *App) {
		if ctx != nil {
			a.ctx = ctx
		}
	}
}

// App is the main application model.
type App struct {
	state   appState
	board   *task.Board
	logbook *logbook.Logbook
	logger  *logging.Logger
	ctx     context.Context

	input     textinput.Model
	keys      keyMap
	help      help.Model
	focus     focusArea
	cursor    int
	pending   map[int64]bool
	statusMsg string

	width  int
	height int
}

// NewApp creates the model on the landing screen.
func NewApp(opts ...AppOption) *App {
	input := textinput.New()
	input.Placeholder = "Enter a task..."
	input.CharLimit = 0 // unlimited
	input.Width = 40
	input.Prompt = "› "

	a := &App{
		state:   stateLanding,
		board:   task.NewBoard(),
		logger:  logging.Discard(),
		ctx:     context.Background(),
		input:   input,
		keys:    defaultKeyMap(),
		help:    help.New(),
		pending: map[int64]bool{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.input.SetValue(a.board.Input())
	return a
}

// Board exposes the state container behind the UI.
func (a *App) Board() *task.Board {
	return a.board
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	a.logInfo("Session opened")
	return nil
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		a.input.Width = max(10, min(msg.Width-12, 72))
		return a, nil

	case stepsResultMsg:
		return a, a.handleStepsResult(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			a.logInfo("Session closed")
			return a, tea.Quit
		}
		switch a.state {
		case stateLanding:
			return a.updateLanding(msg)
		case stateTodo:
			return a.updateTodo(msg)
		}
	}

	if a.state == stateTodo && a.focus == focusInput {
		return a, a.updateInput(msg)
	}
	return a, nil
}

func (a *App) updateLanding(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Quit):
		a.logInfo("Session closed")
		return a, tea.Quit
	case key.Matches(msg, a.keys.Open):
		return a, a.openTodo()
	}
	return a, nil
}

func (a *App) openTodo() tea.Cmd {
	a.state = stateTodo
	a.statusMsg = ""
	return a.focusInputField()
}

func (a *App) updateTodo(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Back):
		a.state = stateLanding
		a.input.Blur()
		return a, nil
	case key.Matches(msg, a.keys.Focus):
		if a.focus == focusInput && a.board.Len() > 0 {
			a.focus = focusList
			a.input.Blur()
			a.clampCursor()
			return a, nil
		}
		return a, a.focusInputField()
	}

	if a.focus == focusInput {
		if key.Matches(msg, a.keys.Add) {
			a.addTask()
			return a, nil
		}
		return a, a.updateInput(msg)
	}

	switch {
	case key.Matches(msg, a.keys.Quit):
		a.logInfo("Session closed")
		return a, tea.Quit
	case key.Matches(msg, a.keys.Up):
		if a.cursor > 0 {
			a.cursor--
		}
	case key.Matches(msg, a.keys.Down):
		if a.cursor < a.board.Len()-1 {
			a.cursor++
		}
	case key.Matches(msg, a.keys.Toggle):
		a.toggleSelected()
	case key.Matches(msg, a.keys.Steps):
		return a, a.requestSteps()
	case key.Matches(msg, a.keys.Help):
		a.help.ShowAll = !a.help.ShowAll
	}
	return a, nil
}

// updateInput forwards msg to the text field and mirrors its value into the
// board's input buffer.
func (a *App) updateInput(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	if a.input.Value() != a.board.Input() {
		a.board.SetInput(a.input.Value())
	}
	return cmd
}

func (a *App) focusInputField() tea.Cmd {
	a.focus = focusInput
	return a.input.Focus()
}

func (a *App) addTask() {
	added, ok := a.board.Add()
	a.input.SetValue(a.board.Input())
	if !ok {
		return
	}
	a.statusMsg = ""
	a.logInfo("Task %d added: %s", added.ID, added.Text)
	a.logger.Debug("task added", "id", added.ID)
}

func (a *App) selected() (task.Task, bool) {
	snap := a.board.Snapshot()
	if a.cursor < 0 || a.cursor >= len(snap.Tasks) {
		return task.Task{}, false
	}
	return snap.Tasks[a.cursor], true
}

func (a *App) toggleSelected() {
	t, ok := a.selected()
	if !ok {
		return
	}
	if a.board.Toggle(t.ID) {
		state := "completed"
		if t.Completed {
			state = "reopened"
		}
		a.logInfo("Task %d %s", t.ID, state)
	}
}

func (a *App) requestSteps() tea.Cmd {
	t, ok := a.selected()
	if !ok || a.pending[t.ID] {
		return nil
	}
	a.pending[t.ID] = true
	a.logger.Debug("steps requested", "id", t.ID)
	board, ctx, id := a.board, a.ctx, t.ID
	return func() tea.Msg {
		steps, err := board.RequestSteps(ctx, id)
		return stepsResultMsg{id: id, steps: steps, err: err}
	}
}

func (a *App) handleStepsResult(msg stepsResultMsg) tea.Cmd {
	delete(a.pending, msg.id)
	if msg.err != nil {
		a.statusMsg = fmt.Sprintf("Could not break task into steps: %v", msg.err)
		a.logError("Task %d steps failed: %v", msg.id, msg.err)
		a.logger.Error("break into steps", "id", msg.id, "err", msg.err)
		return nil
	}
	if a.board.ApplySteps(msg.id, msg.steps) {
		a.logInfo("Task %d broken into %d steps", msg.id, len(msg.steps))
	}
	return nil
}

func (a *App) clampCursor() {
	n := a.board.Len()
	if a.cursor >= n {
		a.cursor = n - 1
	}
	if a.cursor < 0 {
		a.cursor = 0
	}
}

func (a *App) logInfo(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Info(format, args...)
}

func (a *App) logError(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Error(format, args...)
}
