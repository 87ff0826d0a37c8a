package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/thinkpilot/internal/task"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#2563EB"))
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			MarginBottom(1)
	doneStyle = lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("#6B7280"))
	zapStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9333EA"))
	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#374151")).
			PaddingLeft(6)
	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#2563EB")).
			Bold(true)
	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginTop(1)
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// View renders the current screen.
func (a *App) View() string {
	if a.state == stateLanding {
		return a.renderLanding()
	}
	body := renderBoard(a.board.Snapshot(), boardView{
		input:       a.input.View(),
		cursor:      a.cursor,
		listFocused: a.focus == focusList,
	})
	sections := []string{boxStyle.Render(body)}
	if a.statusMsg != "" {
		sections = append(sections, statusStyle.Render(a.statusMsg))
	}
	sections = append(sections, hintStyle.Render(a.help.View(a.keys)))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (a *App) renderLanding() string {
	title := titleStyle.Render("ThinkPilot")
	hint := hintStyle.Render("enter → Magic ToDo    q → quit")
	content := lipgloss.JoinVertical(lipgloss.Center, title, "", hint)
	if a.width <= 0 || a.height <= 0 {
		return content
	}
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, content)
}

// boardView carries the UI chrome that is not part of the board itself.
type boardView struct {
	input       string
	cursor      int
	listFocused bool
}

// renderBoard projects a snapshot to text. It reads nothing but its
// arguments.
func renderBoard(snap task.Snapshot, v boardView) string {
	lines := []string{
		headerStyle.Render("📝 Magic ToDo"),
		v.input,
		"",
	}
	if len(snap.Tasks) == 0 {
		lines = append(lines, hintStyle.Render("No tasks yet."))
	}
	for i, t := range snap.Tasks {
		lines = append(lines, renderTask(t, v.listFocused && i == v.cursor))
		if t.HasSteps() {
			for _, step := range t.Steps {
				lines = append(lines, stepStyle.Render("• "+step))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func renderTask(t task.Task, selected bool) string {
	marker := "  "
	if selected {
		marker = cursorStyle.Render("› ")
	}
	box := "[ ]"
	text := t.Text
	if t.Completed {
		box = "[x]"
		text = doneStyle.Render(text)
	}
	return marker + box + " " + text + "  " + zapStyle.Render("⚡")
}
