package llm

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))

// ConsoleObserver echoes streamed fragments to a terminal.
type ConsoleObserver struct {
	w       io.Writer
	started bool
}

func NewConsoleObserver(w io.Writer) *ConsoleObserver {
	return &ConsoleObserver{w: w}
}

func (c *ConsoleObserver) Fragment(text string) {
	if !c.started {
		fmt.Fprintln(c.w, headerStyle.Render("[AI] Generating weather description (streaming):"))
		c.started = true
	}
	fmt.Fprint(c.w, text)
}

func (c *ConsoleObserver) Done() {
	if c.started {
		fmt.Fprintln(c.w)
	}
	c.started = false
}
