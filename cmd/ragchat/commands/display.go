// ABOUTME: Terminal display sink for streamed answers
// ABOUTME: Prints only the newly arrived text of each update and keeps a cursor at the end on a TTY
package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Faint(true)
)

// terminalDisplay implements core.Display for a line-oriented terminal
type terminalDisplay struct {
	mu         sync.Mutex
	out        io.Writer
	cursor     string
	showCursor bool
	printed    string
	cursorOn   bool
}

func newTerminalDisplay(out io.Writer, cursor string) *terminalDisplay {
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &terminalDisplay{out: out, cursor: cursor, showCursor: tty && cursor != ""}
}

func (d *terminalDisplay) eraseCursor() {
	if d.cursorOn {
		w := lipgloss.Width(d.cursor)
		fmt.Fprint(d.out, strings.Repeat("\b", w)+strings.Repeat(" ", w)+strings.Repeat("\b", w))
		d.cursorOn = false
	}
}

// Update prints the part of text not yet on screen
func (d *terminalDisplay) Update(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cursor != "" {
		text = strings.TrimSuffix(text, d.cursor)
	}
	if !strings.HasPrefix(text, d.printed) {
		// the model rewrote earlier text; start a fresh line
		d.eraseCursor()
		fmt.Fprintln(d.out)
		d.printed = ""
	}
	delta := text[len(d.printed):]

	d.eraseCursor()
	fmt.Fprint(d.out, delta)
	d.printed = text
	if d.showCursor {
		fmt.Fprint(d.out, d.cursor)
		d.cursorOn = true
	}
}

// Done finishes the answer; anything not yet shown is printed first
func (d *terminalDisplay) Done(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.eraseCursor()
	if strings.HasPrefix(text, d.printed) {
		fmt.Fprint(d.out, text[len(d.printed):])
	}
	fmt.Fprintln(d.out)
	d.printed = ""
}

// Fail reports a failed turn
func (d *terminalDisplay) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.eraseCursor()
	if d.printed != "" {
		fmt.Fprintln(d.out)
	}
	fmt.Fprintln(d.out, errorStyle.Render("Error: "+err.Error()))
	d.printed = ""
}
