// Package tui renders the prioritized pull requests in the terminal. It is
// an ordinary observer: everything it shows arrives over a
// transport.Connection.
package tui

import (
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"gitnext/internal/model"
	"gitnext/internal/protocol"
	"gitnext/internal/transport"
)

// ── spinner ────────────────────────────────────────────────────────────────

var spinnerFrames = []string{"|", "/", "-", "\\"}

type tickMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// ── messages ───────────────────────────────────────────────────────────────

type eventMsg struct {
	m protocol.Message
}

type disconnectedMsg struct{}

type sentMsg struct {
	err error
}

type copiedMsg struct {
	branch string
	err    error
}

type openedMsg struct {
	err error
}

// ── list item ──────────────────────────────────────────────────────────────

type prItem struct {
	pr model.PrioritizedPullRequest
}

func (i prItem) Title() string {
	return badge(i.pr.Priority) + " " + i.pr.Title
}

func (i prItem) Description() string {
	d := i.pr.BaseRepository.FullName() + "  " + i.pr.From
	switch i.pr.UpdateState {
	case model.New:
		d += "  " + newStyle.Render("new")
	case model.Updated:
		d += "  " + updatedStyle.Render("updated")
	}
	return d
}

func (i prItem) FilterValue() string { return i.pr.Title }

// ── model ──────────────────────────────────────────────────────────────────

// Model is the bubbletea model of the pull request browser.
type Model struct {
	conn transport.Connection
	keys keyMap

	list   list.Model
	prs    []model.PrioritizedPullRequest
	width  int
	height int

	loading      bool
	phase        protocol.Type
	err          string
	status       string
	spinnerFrame int

	openURL   func(url string) error
	writeClip func(text string) error
	now       func() time.Time
}

// New returns a Model reading events from conn.
func New(conn transport.Connection) Model {
	delegate := list.NewDefaultDelegate()

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = "Pull requests"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.Styles.Title = titleStyle

	return Model{
		conn:      conn,
		keys:      defaultKeys(),
		list:      l,
		loading:   true,
		openURL:   openBrowser,
		writeClip: clipboard.WriteAll,
		now:       time.Now,
	}
}

// ── commands ───────────────────────────────────────────────────────────────

func waitForEvent(conn transport.Connection) tea.Cmd {
	return func() tea.Msg {
		m, ok := <-conn.Messages()
		if !ok {
			return disconnectedMsg{}
		}
		return eventMsg{m: m}
	}
}

func sendCmd(conn transport.Connection, t protocol.Type) tea.Cmd {
	return func() tea.Msg {
		return sentMsg{err: conn.Send(protocol.Event(t))}
	}
}

// greetCmd sends HELLO then LOAD_DATA, in that order.
func greetCmd(conn transport.Connection) tea.Cmd {
	return func() tea.Msg {
		if err := conn.Send(protocol.Event(protocol.Hello)); err != nil {
			return sentMsg{err: err}
		}
		return sentMsg{err: conn.Send(protocol.Event(protocol.LoadData))}
	}
}

func copyCmd(write func(string) error, branch string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{branch: branch, err: write(branch)}
	}
}

func openCmd(open func(string) error, url string) tea.Cmd {
	return func() tea.Msg {
		return openedMsg{err: open(url)}
	}
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Run()
}

func (m *Model) setPullRequests(prs []model.PrioritizedPullRequest) {
	m.prs = prs
	items := make([]list.Item, len(prs))
	for i, pr := range prs {
		items[i] = prItem{pr: pr}
	}
	m.list.SetItems(items)
}

// ── tea.Model ──────────────────────────────────────────────────────────────

// Init greets the controller, then asks for a load.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		greetCmd(m.conn),
		waitForEvent(m.conn),
		tickCmd(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		lw, lh := m.listDimensions()
		m.list.SetSize(lw, lh)
		return m, nil

	case tickMsg:
		m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		return m, tickCmd()

	case eventMsg:
		m.handleEvent(msg.m)
		return m, waitForEvent(m.conn)

	case disconnectedMsg:
		m.loading = false
		m.err = "connection to gitnext server lost"
		return m, nil

	case sentMsg:
		if msg.err != nil {
			m.loading = false
			m.err = msg.err.Error()
		}
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.status = "copy failed: " + msg.err.Error()
		} else {
			m.status = "copied " + msg.branch
		}
		return m, nil

	case openedMsg:
		if msg.err != nil {
			m.status = "open failed: " + msg.err.Error()
		}
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleEvent(e protocol.Message) {
	switch e.Type {
	case protocol.Welcome:
	case protocol.Error:
		m.loading = false
		m.err = e.Error
	case protocol.LoadedStoredData:
		m.loading = true
		m.phase = e.Type
		if len(e.Data) > 0 {
			m.setPullRequests(e.Data)
		}
	case protocol.StoredData:
		m.loading = false
		m.err = ""
		m.phase = e.Type
		m.setPullRequests(e.Data)
	default:
		// Another observer may have started the run.
		m.loading = true
		m.err = ""
		m.phase = e.Type
	}
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Reload):
		if m.loading {
			return m, nil
		}
		m.loading = true
		m.err = ""
		m.status = ""
		m.phase = ""
		return m, sendCmd(m.conn, protocol.LoadData)

	case key.Matches(msg, m.keys.Open):
		if pr := m.selected(); pr != nil {
			return m, openCmd(m.openURL, pr.URL)
		}
		return m, nil

	case key.Matches(msg, m.keys.Copy):
		if pr := m.selected(); pr != nil {
			return m, copyCmd(m.writeClip, pr.From)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) selected() *model.PrioritizedPullRequest {
	if m.err != "" || len(m.prs) == 0 {
		return nil
	}
	idx := m.list.Index()
	if idx < 0 || idx >= len(m.prs) {
		return nil
	}
	return &m.prs[idx]
}

// Run starts the program on conn and blocks until the user quits.
func Run(conn transport.Connection) error {
	p := tea.NewProgram(New(conn), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running tui: %w", err)
	}
	return nil
}
