package tui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// state represents the current phase of a command.
type state int

const (
	stateInit       state = iota
	stateVerifying        // verifying the stored token
	stateLoggingIn        // exchanging credentials
	stateWorking          // API call in flight
	stateRefreshing       // access token rejected, refreshing
	stateSuccess          // all done
	stateError            // fatal error
)

// statusKind distinguishes line types in the status log.
type statusKind int

const (
	statusOK   statusKind = iota
	statusWarn            // warning / non-fatal
	statusInfo            // neutral info
)

// statusLine is one row in the scrolling status log.
type statusLine struct {
	kind statusKind
	text string
}

// Model is the BubbleTea model shown on stderr while a command runs.
type Model struct {
	state   state
	spinner spinner.Model
	width   int
	height  int

	working  string
	summary  string
	errTitle string
	errMsg   string

	statusLines []statusLine
}

var (
	styleTitleBox = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 2)

	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleErr  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleBold = lipgloss.NewStyle().Bold(true)
)

// NewModel creates the initial TUI model.
func NewModel() Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))),
	)
	return Model{
		state:   stateInit,
		spinner: s,
	}
}

// Init starts the spinner animation.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	case MsgBanner:
		return m, nil

	case MsgVerifying:
		m.state = stateVerifying
		return m, nil

	case MsgVerifyOK:
		m.addStatus(statusOK, "Token verified")
		return m, nil

	case MsgVerifyFailed:
		m.addStatus(statusWarn, fmt.Sprintf("Token verification failed: %v", msg.Err))
		return m, nil

	case MsgLoggingIn:
		m.state = stateLoggingIn
		m.working = "Logging in as " + msg.Username
		return m, nil

	case MsgLoginOK:
		text := "Logged in as " + msg.Username
		if msg.StudentID > 0 {
			text += fmt.Sprintf(" (student %d)", msg.StudentID)
		}
		m.addStatus(statusOK, text)
		return m, nil

	case MsgLoginFailed:
		m.addStatus(statusWarn, fmt.Sprintf("Login failed: %v", msg.Err))
		return m, nil

	case MsgLoggedOut:
		m.addStatus(statusOK, "Logged out")
		return m, nil

	case MsgSessionChanged:
		m.addStatus(statusInfo, "Session is now "+msg.State)
		return m, nil

	case MsgAccessTokenRejected:
		m.state = stateRefreshing
		m.addStatus(statusWarn, fmt.Sprintf("Access token rejected (401) on %s, refreshing...", msg.Path))
		return m, nil

	case MsgTokenRefreshedRetrying:
		m.state = stateWorking
		m.addStatus(statusOK, "Token refreshed, retrying "+msg.Path)
		return m, nil

	case MsgReAuthRequired:
		m.addStatus(statusWarn, fmt.Sprintf("Session expired: %v", msg.Err))
		return m, nil

	case MsgWorking:
		m.state = stateWorking
		m.working = msg.What
		return m, nil

	case MsgAPICallOK:
		m.addStatus(statusOK, msg.What)
		return m, nil

	case MsgAPICallFailed:
		m.errTitle = "Rejected by the API"
		m.errMsg = msg.Err.Error()
		m.state = stateError
		return m, nil

	case MsgDone:
		m.summary = msg.Summary
		m.state = stateSuccess
		return m, nil

	case MsgFatal:
		m.errTitle = "Command failed"
		m.errMsg = msg.Err.Error()
		m.state = stateError
		return m, nil
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() tea.View {
	switch m.state {
	case stateSuccess:
		return tea.NewView(m.viewSuccess())
	case stateError:
		return tea.NewView(m.viewError())
	default:
		return tea.NewView(m.viewMain())
	}
}

func (m Model) viewMain() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleTitleBox.Render("  Student Project Team Builder  "))
	b.WriteString("\n\n")

	b.WriteString(m.spinner.View())
	switch m.state {
	case stateVerifying:
		b.WriteString(" Verifying token...\n")
	case stateRefreshing:
		b.WriteString(" Refreshing access token...\n")
	case stateLoggingIn, stateWorking:
		b.WriteString(" " + m.working + "...\n")
	default:
		b.WriteString(" Initializing...\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

func (m Model) viewSuccess() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleOK.Render("  ✓ Done"))
	b.WriteString("\n")
	if m.summary != "" {
		b.WriteString("\n  ")
		b.WriteString(styleBold.Render(m.summary))
		b.WriteString("\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleErr.Render("  ✗ " + m.errTitle))
	b.WriteString("\n\n")
	b.WriteString(styleDim.Render("  " + m.errMsg))
	b.WriteString("\n")

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewStatusLog renders the scrolling status log.
func (m Model) viewStatusLog() string {
	if len(m.statusLines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")

	for _, line := range m.statusLines {
		switch line.kind {
		case statusOK:
			b.WriteString(styleOK.Render("  ✓ " + line.text))
		case statusWarn:
			b.WriteString(styleWarn.Render("  ⚠ " + line.text))
		default:
			b.WriteString(styleDim.Render("  · " + line.text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) addStatus(kind statusKind, text string) {
	m.statusLines = append(m.statusLines, statusLine{kind: kind, text: text})
}
