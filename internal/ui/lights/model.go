package lights

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ambrose/internal/keys"
	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/service"
	"github.com/nhle/ambrose/internal/theme"
)

// Unit is the duration of one light period.
const Unit = 250 * time.Millisecond

// tickMsg advances every animation by one period unit.
type tickMsg struct{}

// pollMsg asks for a fetch.
type pollMsg struct{}

// LightsMsg carries a poll result.
type LightsMsg struct {
	Lights []service.Light
	Err    error
	At     time.Time
}

type slot struct {
	light service.Light
	tick  int
}

// Model is the simulator view.
type Model struct {
	title    string
	fetch    FetchFunc
	interval time.Duration
	keys     *keys.KeyMap
	help     help.Model
	slots    []slot
	lastPoll time.Time
	err      error
	paused   bool
	showHelp bool
	width    int
	height   int
}

// New creates a simulator polling fetch every interval.
func New(title string, fetch FetchFunc, interval time.Duration) Model {
	return Model{
		title:    title,
		fetch:    fetch,
		interval: interval,
		keys:     keys.DefaultKeyMap(),
		help:     help.New(),
		width:    80,
		height:   24,
	}
}

// Init starts the animation clock and the first poll.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), m.poll())
}

func tick() tea.Cmd {
	return tea.Tick(Unit, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m Model) poll() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		lights, err := fetch(ctx)
		return LightsMsg{Lights: lights, Err: err, At: time.Now()}
	}
}

func (m Model) schedulePoll() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return pollMsg{} })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, m.poll()
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
		}
		return m, nil

	case tickMsg:
		if !m.paused {
			for i := range m.slots {
				m.slots[i].tick++
			}
		}
		return m, tick()

	case pollMsg:
		return m, m.poll()

	case LightsMsg:
		m.lastPoll = msg.At
		m.err = msg.Err
		if msg.Err == nil {
			m.apply(msg.Lights)
		}
		return m, m.schedulePoll()
	}
	return m, nil
}

// apply takes a poll result. Slots whose configuration is unchanged keep
// their animation phase and changed slots restart.
func (m *Model) apply(lights []service.Light) {
	old := make(map[int]slot, len(m.slots))
	for _, s := range m.slots {
		old[s.light.Slot] = s
	}
	next := make([]slot, 0, len(lights))
	for _, l := range lights {
		s := slot{light: l}
		if prev, ok := old[l.Slot]; ok && reflect.DeepEqual(prev.light.Light, l.Light) {
			s.tick = prev.tick
		}
		next = append(next, s)
	}
	m.slots = next
}

// Colors returns the color every slot shows right now.
func (m Model) Colors() []model.Color {
	out := make([]model.Color, len(m.slots))
	for i, s := range m.slots {
		out[i] = Frame(s.light.Light, s.tick)
	}
	return out
}

// View renders the simulator.
func (m Model) View() string {
	header := theme.HeaderStyle.Width(m.width).Render(m.title)

	var body string
	if m.showHelp {
		m.help.ShowAll = true
		body = theme.PanelStyle.Render(m.help.View(m.keys))
	} else {
		body = m.renderSlots()
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.statusBar())
}

func (m Model) renderSlots() string {
	if len(m.slots) == 0 {
		return theme.PanelStyle.Render(theme.HelpStyle.Render("waiting for lights..."))
	}
	lamps := make([]string, 0, len(m.slots))
	for _, s := range m.slots {
		color := Frame(s.light.Light, s.tick)
		label := fmt.Sprintf("slot %d", s.light.Slot)
		if s.light.TaskID == nil {
			label += " (empty)"
		}
		kind := string(s.light.Light.Type)
		if s.light.Light.Type == model.LightInitiallyBlinking && Settled(s.light.Light, s.tick) {
			kind = "settled"
		}
		lamps = append(lamps, lipgloss.JoinVertical(lipgloss.Center,
			theme.LampStyle(color).Render(""),
			label,
			theme.TypeStyle(s.light.Light.Type).Render(kind),
		))
	}
	return theme.PanelStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, spaced(lamps)...))
}

func (m Model) statusBar() string {
	var parts []string
	if m.err != nil {
		parts = append(parts, theme.ErrorStyle.Render(m.err.Error()))
	} else if !m.lastPoll.IsZero() {
		parts = append(parts, "polled "+m.lastPoll.Format("15:04:05"))
	}
	if m.paused {
		parts = append(parts, "paused")
	}
	parts = append(parts, m.help.ShortHelpView(m.keys.ShortHelp()))
	return theme.StatusBarStyle.Width(m.width).Render(strings.Join(parts, "  "))
}

func spaced(items []string) []string {
	out := make([]string, 0, 2*len(items))
	for i, it := range items {
		if i > 0 {
			out = append(out, "  ")
		}
		out = append(out, it)
	}
	return out
}
