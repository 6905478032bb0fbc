// Package tui is the interactive chat shell.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/chain"
	"ragchat/internal/domain"
	"ragchat/internal/service"
)

// Port is the TUI-facing subset of the service.
type Port interface {
	Ask(ctx context.Context, sess *service.Session, question string) (chain.Answer, error)
	ClearHistory(sess *service.Session)
	UploadPDF(ctx context.Context, data []byte, name string) (service.AddResult, error)
	AddURL(ctx context.Context, rawURL string, kind domain.SourceKind) (service.AddResult, error)
	Initialize(ctx context.Context, loadDocuments bool) error
	Sources() ([]domain.SourceDescriptor, error)
	LastOutcomes() []domain.Outcome
	Summary() string
	State() service.State
}

var _ Port = (*service.Service)(nil)

type tab int

const (
	chatTab tab = iota
	sourcesTab
)

const (
	fieldPDF = iota
	fieldYouTube
	fieldURL
	fieldCount
)

type entry struct {
	query   string
	answer  string
	sources []string
	excerpt string
}

// Model is the Bubble Tea model for the chat shell.
type Model struct {
	ctx     context.Context
	port    Port
	session *service.Session
	changes <-chan struct{}

	tab      tab
	input    textinput.Model
	fields   [fieldCount]textinput.Model
	focus    int
	viewport viewport.Model
	spinner  spinner.Model

	log      []entry
	known    map[string]struct{}
	sources  []domain.SourceDescriptor
	summary  string
	status   string
	busy     bool
	busyText string
	// changed records a watcher notification that arrived while busy.
	changed  bool
	ready    bool
	width    int
	height   int
}

// New creates the shell for port. changes, if not nil, delivers source
// directory change notifications.
func New(ctx context.Context, port Port, changes <-chan struct{}) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0

	var fields [fieldCount]textinput.Model
	labels := [fieldCount]string{"PDF path    ", "YouTube URL ", "Web URL     "}
	for i := range fields {
		f := textinput.New()
		f.Prompt = labels[i] + "> "
		f.CharLimit = 0
		fields[i] = f
	}
	fields[fieldPDF].Placeholder = "/path/to/document.pdf"
	fields[fieldYouTube].Placeholder = "https://youtu.be/..."
	fields[fieldURL].Placeholder = "https://example.com/article"

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	srcs, _ := port.Sources()
	m := Model{
		ctx:      ctx,
		port:     port,
		session:  service.NewSession(),
		changes:  changes,
		input:    ti,
		fields:   fields,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		known:    sourceSet(srcs),
		sources:  srcs,
		summary:  port.Summary(),
	}
	if port.State() == service.Ready {
		m.status = service.Status(fmt.Sprintf("Ready. %d sources indexed.", len(srcs)), nil)
	} else {
		m.status = service.Status("", domain.ErrNotReady)
	}
	return m
}

func (m Model) Init() tea.Cmd { return tea.Batch(textinput.Blink, waitForChange(m.changes)) }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case answerMsg:
		m.busy = false
		cmd := m.pendingChange(m.known)
		if msg.err != nil {
			m.status = service.Status("", msg.err)
			return m, cmd
		}
		e := entry{query: msg.answer.Question, answer: msg.answer.Text, sources: msg.answer.SourceNames()}
		if len(msg.answer.Sources) > 0 {
			e.excerpt = highlightBestSentence(msg.answer.Sources[0].Chunk.Text, msg.answer.Question, highlightStyle)
		}
		m.log = append(m.log, e)
		m.status = ""
		m.refresh()
		m.viewport.GotoBottom()
		return m, cmd

	case actionMsg:
		m.busy = false
		// Sources the shell expects on disk: everything it knew plus what
		// this action stored. A rebuild already indexed the whole scan.
		expected := sourceSet(msg.sources)
		if !msg.rebuilt {
			expected = make(map[string]struct{}, len(m.known)+1)
			for loc := range m.known {
				expected[loc] = struct{}{}
			}
			if msg.added != "" {
				expected[msg.added] = struct{}{}
			}
		}
		m.status = msg.status
		m.summary = msg.summary
		m.sources = msg.sources
		m.known = sourceSet(msg.sources)
		if msg.rebuilt {
			// A rebuilt index starts a fresh conversation.
			m.log = nil
		}
		m.refresh()
		return m, m.pendingChange(expected)

	case sourcesChangedMsg:
		next := waitForChange(m.changes)
		if m.busy {
			m.changed = true
			return m, next
		}
		return m, tea.Batch(next, externalChangeCmd(m.ctx, m.port, m.known))

	case watchIdleMsg:
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m.updateInputs(msg)
}

// pendingChange replays a watcher notification held back while busy.
func (m *Model) pendingChange(expected map[string]struct{}) tea.Cmd {
	if !m.changed {
		return nil
	}
	m.changed = false
	return externalChangeCmd(m.ctx, m.port, expected)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyCtrlD:
		return m, tea.Quit
	case tea.KeyCtrlT:
		m.switchTab()
		return m, nil
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	if m.busy {
		return m, nil
	}
	if m.tab == chatTab {
		switch msg.Type {
		case tea.KeyCtrlL:
			m.port.ClearHistory(m.session)
			m.log = nil
			m.status = service.Status("Chat history cleared.", nil)
			m.refresh()
			return m, nil
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			m.input.Reset()
			return m.start("Thinking...", askCmd(m.ctx, m.port, m.session, q))
		}
		return m.updateInputs(msg)
	}

	switch msg.Type {
	case tea.KeyTab, tea.KeyDown:
		m.setFocus((m.focus + 1) % fieldCount)
		return m, nil
	case tea.KeyShiftTab, tea.KeyUp:
		m.setFocus((m.focus - 1 + fieldCount) % fieldCount)
		return m, nil
	case tea.KeyCtrlR:
		return m.start("Rebuilding index...", reindexCmd(m.ctx, m.port, "Index rebuilt."))
	case tea.KeyEnter:
		v := strings.TrimSpace(m.fields[m.focus].Value())
		if v == "" {
			return m, nil
		}
		m.fields[m.focus].Reset()
		switch m.focus {
		case fieldPDF:
			return m.start("Processing PDF...", uploadPDFCmd(m.ctx, m.port, v))
		case fieldYouTube:
			return m.start("Downloading and transcribing...", addURLCmd(m.ctx, m.port, v, domain.KindYouTube))
		default:
			return m.start("Fetching page...", addURLCmd(m.ctx, m.port, v, domain.KindURL))
		}
	}
	return m.updateInputs(msg)
}

func (m Model) start(text string, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	m.busy = true
	m.busyText = text
	m.status = ""
	return m, tea.Batch(m.spinner.Tick, cmd)
}

func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.tab == chatTab {
		m.input, cmd = m.input.Update(msg)
	} else {
		m.fields[m.focus], cmd = m.fields[m.focus].Update(msg)
	}
	return m, cmd
}

func (m *Model) switchTab() {
	if m.tab == chatTab {
		m.tab = sourcesTab
		m.input.Blur()
		m.setFocus(m.focus)
	} else {
		m.tab = chatTab
		m.fields[m.focus].Blur()
		m.input.Focus()
	}
	m.layout()
}

func (m *Model) setFocus(i int) {
	for j := range m.fields {
		m.fields[j].Blur()
	}
	m.focus = i
	m.fields[i].Focus()
}

func (m *Model) layout() {
	if !m.ready {
		return
	}
	_, rh := resultBoxStyle.GetFrameSize()
	_, qh := queryBoxStyle.GetFrameSize()
	inputLines := 1
	if m.tab == sourcesTab {
		inputLines = fieldCount
	}
	reserved := 3 + 1 + qh + inputLines // header, summary, tabs; status; input box
	m.viewport.Width = max(20, m.width-4)
	m.viewport.Height = max(3, m.height-reserved-rh)
	for i := range m.fields {
		m.fields[i].Width = max(10, m.width-20)
	}
	m.input.Width = max(10, m.width-8)
	m.refresh()
}

func (m *Model) refresh() {
	if m.tab == chatTab {
		m.viewport.SetContent(m.renderChat())
	} else {
		m.viewport.SetContent(m.renderSources())
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("ragchat")
	summary := summaryStyle.Render(m.summary)
	tabs := m.renderTabs()
	body := resultBoxStyle.Render(m.viewport.View())

	var input string
	if m.tab == chatTab {
		input = queryBoxStyle.Render(m.input.View())
	} else {
		views := make([]string, len(m.fields))
		for i := range m.fields {
			views[i] = m.fields[i].View()
		}
		input = queryBoxStyle.Render(strings.Join(views, "\n"))
	}

	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + m.busyText
	}
	return header + "\n" + summary + "\n" + tabs + "\n" + body + "\n" + input + "\n" + statusStyle.Render(status)
}

func (m Model) renderTabs() string {
	chat, srcs := inactiveTabStyle, inactiveTabStyle
	if m.tab == chatTab {
		chat = activeTabStyle
	} else {
		srcs = activeTabStyle
	}
	help := helpStyle.Render("  ctrl+t switch tab · ctrl+l clear chat · ctrl+r reindex (sources) · ctrl+c quit")
	return chat.Render("Chat") + " " + srcs.Render("Add Sources") + help
}

func (m Model) renderChat() string {
	if len(m.log) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, e := range m.log {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: " + e.query))
		b.WriteString("\n")
		b.WriteString(e.answer)
		if len(e.sources) > 0 {
			b.WriteString("\n")
			b.WriteString(sourceStyle.Render("Sources: " + strings.Join(e.sources, ", ")))
		}
		if e.excerpt != "" {
			b.WriteString("\n")
			b.WriteString(excerptStyle.Render(e.excerpt))
		}
	}
	return b.String()
}

func (m Model) renderSources() string {
	var b strings.Builder
	if len(m.sources) == 0 {
		b.WriteString("No sources yet. Add a PDF, YouTube video or web page below.")
	}
	for _, d := range m.sources {
		b.WriteString(describeSource(d))
		b.WriteString("\n")
	}
	if outcomes := m.port.LastOutcomes(); len(outcomes) > 0 {
		b.WriteString("\nLast load:\n")
		for _, o := range outcomes {
			b.WriteString(service.OutcomeStatus(o))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	resultBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	titleStyle       = lipgloss.NewStyle().Bold(true)
	summaryStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	helpStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	activeTabStyle   = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("12"))
	inactiveTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	questionStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	sourceStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	excerptStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("7")).PaddingLeft(2)
)
