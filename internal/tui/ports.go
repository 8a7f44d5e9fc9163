// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"signalmon/internal/source"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)
)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// BaudRates offered on the configuration screen.
var BaudRates = []int{9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}

var keys = struct {
	quit, up, down, enter, back key.Binding
}{
	quit:  key.NewBinding(key.WithKeys("q", "ctrl+c")),
	up:    key.NewBinding(key.WithKeys("up", "k")),
	down:  key.NewBinding(key.WithKeys("down", "j")),
	enter: key.NewBinding(key.WithKeys("enter")),
	back:  key.NewBinding(key.WithKeys("esc")),
}

// Selection is what the user confirmed.
type Selection struct {
	Port     string
	BaudRate int
}

// PortListModel is the Bubble Tea model for choosing a serial port and its
// baud rate.
type PortListModel struct {
	lister        func() ([]source.PortInfo, error)
	ports         []source.PortInfo
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	baudIndex int
	selection *Selection
}

// NewPortListModel creates a model listing the system's ports. baud is the
// rate preselected on the configuration screen.
func NewPortListModel(baud int) PortListModel {
	return newPortListModel(source.ListPorts, baud)
}

func newPortListModel(lister func() ([]source.PortInfo, error), baud int) PortListModel {
	m := PortListModel{lister: lister, activeScreen: ListScreen}
	for i, rate := range BaudRates {
		if rate == baud {
			m.baudIndex = i
		}
	}
	return m
}

type portsMsg struct {
	ports []source.PortInfo
}

type errMsg struct {
	err error
}

// Init starts enumerating ports.
func (m PortListModel) Init() tea.Cmd {
	lister := m.lister
	return func() tea.Msg {
		ports, err := lister()
		if err != nil {
			return errMsg{err}
		}
		return portsMsg{ports}
	}
}

// Update handles input and updates the model
func (m PortListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case portsMsg:
		m.ports = msg.ports
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, keys.quit) {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, keys.up):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, keys.down):
				if m.selectedIndex < len(m.ports)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, keys.enter):
				if len(m.ports) > 0 {
					m.activeScreen = ConfigScreen
				}
			}
		case ConfigScreen:
			switch {
			case key.Matches(msg, keys.back):
				m.activeScreen = ListScreen
			case key.Matches(msg, keys.up):
				if m.baudIndex > 0 {
					m.baudIndex--
				}
			case key.Matches(msg, keys.down):
				if m.baudIndex < len(BaudRates)-1 {
					m.baudIndex++
				}
			case key.Matches(msg, keys.enter):
				m.selection = &Selection{Port: m.ports[m.selectedIndex].Name, BaudRate: BaudRates[m.baudIndex]}
				return m, tea.Quit
			}
		}
		m.refresh()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *PortListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ConfigScreen {
		m.viewport.SetContent(m.renderPortConfig())
	} else {
		m.viewport.SetContent(m.renderPorts())
	}
}

// Selection returns the confirmed choice, if any.
func (m PortListModel) Selection() (Selection, bool) {
	if m.selection == nil {
		return Selection{}, false
	}
	return *m.selection, true
}

// View renders the UI
func (m PortListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Serial Ports")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Port Configuration")
		help = infoStyle.Render("↑/↓: Baud Rate • Enter: Monitor • Esc: Back • q: Quit")
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m PortListModel) renderPorts() string {
	if len(m.ports) == 0 {
		return "No serial ports found."
	}

	var sb strings.Builder
	for i, p := range m.ports {
		line := fmt.Sprintf("[%d] %s\n", i, p.Name)
		if desc := p.Description(); desc != "" {
			line += "    " + desc + "\n"
		}
		if i == m.selectedIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m PortListModel) renderPortConfig() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Configure Port: %s\n\n", m.ports[m.selectedIndex].Name)
	sb.WriteString("Baud Rate:\n")

	for i, rate := range BaudRates {
		marker := " "
		if i == m.baudIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %d\n", marker, rate)
		if i == m.baudIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// ErrCancelled is returned by PickPort when the user quit without choosing.
var ErrCancelled = errors.New("no port selected")

// PickPort runs the picker full screen and returns the confirmed choice.
func PickPort(baud int) (Selection, error) {
	final, err := tea.NewProgram(NewPortListModel(baud), tea.WithAltScreen()).Run()
	if err != nil {
		return Selection{}, err
	}
	if m, ok := final.(PortListModel); ok {
		if sel, ok := m.Selection(); ok {
			return sel, nil
		}
		if m.err != nil {
			return Selection{}, m.err
		}
	}
	return Selection{}, ErrCancelled
}
