package display

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"ai-speech-session-service/internal/events"
)

var (
	colorPrimary = lipgloss.Color("#8B5CF6") // Violet
	colorMuted   = lipgloss.Color("#6B7280") // Gray
	colorSuccess = lipgloss.Color("#10B981") // Emerald
	colorError   = lipgloss.Color("#EF4444") // Red

	speakerStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	interimStyle = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	finalStyle   = lipgloss.NewStyle()
	statusStyle  = lipgloss.NewStyle().Foreground(colorSuccess)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
)

// Console prints the transcript to a terminal. The latest interim is drawn
// on one line that is overwritten in place; finals are appended.
type Console struct {
	mu          sync.Mutex
	out         io.Writer
	interimOpen bool
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Attach subscribes the console to bus.
func (c *Console) Attach(bus *events.Bus) (unsubscribe func()) {
	return bus.Subscribe(c.Handle)
}

func (c *Console) Handle(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case events.SegmentReceived:
		seg := ev.Segment
		line := seg.Text
		if seg.Speaker != "" {
			line = speakerStyle.Render(seg.Speaker+":") + " " + seg.Text
		}
		if seg.IsFinal {
			c.clearInterim()
			fmt.Fprintln(c.out, finalStyle.Render(line))
			return
		}
		c.clearInterim()
		fmt.Fprint(c.out, interimStyle.Render(line))
		c.interimOpen = true

	case events.SessionStarted:
		c.clearInterim()
		fmt.Fprintln(c.out, statusStyle.Render(fmt.Sprintf("● %s session %s started", ev.Mode, ev.SessionID)))

	case events.SessionCompleted:
		c.clearInterim()
		if ev.Err != nil {
			fmt.Fprintln(c.out, errorStyle.Render("■ session failed: "+ev.Err.Error()))
			return
		}
		fmt.Fprintln(c.out, statusStyle.Render("■ session completed"))

	case events.ErrorOccurred:
		c.clearInterim()
		fmt.Fprintln(c.out, errorStyle.Render("✖ "+ev.Err.Error()))
	}
}

// clearInterim erases the in-place interim line; c.mu must be held.
func (c *Console) clearInterim() {
	if c.interimOpen {
		fmt.Fprint(c.out, "\r\033[2K")
		c.interimOpen = false
	}
}
