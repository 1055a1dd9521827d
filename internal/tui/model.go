package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/chat"
	"ragchat/internal/domain"
	"ragchat/internal/summarizer"
)

// ChatPort is the TUI-facing subset of the chat engine.
type ChatPort interface {
	Turn(ctx context.Context, s *chat.Session, topic, question string) (chat.Reply, error)
}

// PageFunc loads the text of one zero-based page of a file.
type PageFunc func(path string, page int) (string, error)

// openCommand opens a typed locator, e.g. ":open data/tet.pdf:3:0".
const openCommand = ":open"

// gistSentences is how many key sentences head the source viewer.
const gistSentences = 2

type mode int

const (
	modeChat mode = iota
	modeSource
)

type replyMsg struct {
	topic string
	reply chat.Reply
	err   error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	engine   ChatPort
	session  *chat.Session
	topics   []chat.Topic
	pageText PageFunc
	ctx      context.Context

	input    textinput.Model
	viewport viewport.Model
	topic    int
	mode     mode
	status   string
	busy     bool
	ready    bool

	// sources of every answer in the active topic, in transcript order
	sources   []domain.Source
	srcCursor int
	lastQuery string
}

// New creates a new TUI model instance.
func New(ctx context.Context, engine ChatPort, session *chat.Session, topics []chat.Topic, pageText PageFunc) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	m := Model{
		engine:   engine,
		session:  session,
		topics:   topics,
		pageText: pageText,
		ctx:      ctx,
		input:    ti,
		viewport: vp,
		status:   "Tab switches topic. Ctrl+N/Ctrl+P pick a source, Ctrl+O opens it.",
	}
	m.viewport.SetContent(m.renderTranscript())
	return m
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) activeTopic() chat.Topic { return m.topics[m.topic] }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around the body and input boxes
		_, bh := bodyBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.refresh()
		return m, nil
	case replyMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Answered with %d source(s)", len(msg.reply.Sources))
			if msg.topic == m.activeTopic().ID {
				m.loadSources()
			}
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "tab", "shift+tab":
			if m.busy {
				return m, nil
			}
			step := 1
			if msg.String() == "shift+tab" {
				step = len(m.topics) - 1
			}
			m.topic = (m.topic + step) % len(m.topics)
			m.mode = modeChat
			m.loadSources()
			m.status = "Topic: " + m.activeTopic().Label
			m.refresh()
			return m, nil
		case "esc":
			if m.mode == modeSource {
				m.mode = modeChat
				m.refresh()
			}
			return m, nil
		case "ctrl+n", "ctrl+p":
			if len(m.sources) > 0 {
				if msg.String() == "ctrl+n" {
					m.srcCursor = (m.srcCursor + 1) % len(m.sources)
				} else {
					m.srcCursor = (m.srcCursor - 1 + len(m.sources)) % len(m.sources)
				}
				m.refresh()
			}
			return m, nil
		case "ctrl+o":
			if len(m.sources) > 0 {
				m.openSource(m.sources[m.srcCursor])
			}
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case "enter":
			return m.submit()
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.busy {
		return m, nil
	}
	m.input.SetValue("")
	if strings.HasPrefix(text, openCommand) {
		src, err := domain.ParseSource(strings.TrimPrefix(text, openCommand))
		if err != nil {
			m.status = "Error: " + err.Error()
			return m, nil
		}
		m.openSource(src)
		return m, nil
	}

	topic := m.activeTopic().ID
	m.busy = true
	m.mode = modeChat
	m.lastQuery = text
	m.status = "Thinking..."
	engine, session, ctx := m.engine, m.session, m.ctx
	// the question is appended to the log inside Turn; show it right away
	m.refreshPending(text)
	return m, func() tea.Msg {
		reply, err := engine.Turn(ctx, session, topic, text)
		return replyMsg{topic: topic, reply: reply, err: err}
	}
}

func (m *Model) openSource(src domain.Source) {
	if m.pageText == nil {
		m.status = "Error: source viewer unavailable"
		return
	}
	text, err := m.pageText(src.FilePath(), src.Page)
	if err != nil {
		m.status = "Error: " + err.Error()
		return
	}
	if strings.TrimSpace(text) == "" {
		text = "(no extractable text on this page)"
	}
	m.mode = modeSource
	m.status = fmt.Sprintf("Viewing %s page %d. Esc returns.", src.FilePath(), src.Page+1)
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Render(src.String()) + "\n")
	if points := summarizer.Gist(text, gistSentences); len(points) > 1 {
		b.WriteString(sourceStyle.Render("Key points:") + "\n")
		for _, p := range points {
			b.WriteString(sourceStyle.Render("  • "+p) + "\n")
		}
	}
	b.WriteString("\n" + highlightBestSentence(text, m.lastQuery))
	m.viewport.SetContent(b.String())
	m.viewport.GotoTop()
}

// loadSources collects the sources of all answers in the active topic and
// points the cursor at the first source of the latest answer.
func (m *Model) loadSources() {
	m.sources, m.srcCursor = nil, 0
	for _, msg := range m.session.Messages(m.activeTopic().ID) {
		if msg.Role != chat.RoleAssistant || len(msg.Sources) == 0 {
			continue
		}
		m.srcCursor = len(m.sources)
		m.sources = append(m.sources, msg.Sources...)
	}
}

func (m *Model) refresh() {
	if m.mode == modeSource {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *Model) refreshPending(question string) {
	m.viewport.SetContent(m.renderTranscript() + "\n" + userStyle.Render(chat.UserLabel+": ") + question)
	m.viewport.GotoBottom()
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	tabs := make([]string, len(m.topics))
	for i, t := range m.topics {
		if i == m.topic {
			tabs[i] = activeTabStyle.Render(t.Label)
		} else {
			tabs[i] = tabStyle.Render(t.Label)
		}
	}
	header := lipgloss.NewStyle().Bold(true).Render(m.session.BotName()) + "  " + strings.Join(tabs, " ")
	body := bodyBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	if strings.HasPrefix(m.status, "Error:") {
		status = errorStyle.Render(m.status)
	}
	return header + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	topic := m.activeTopic()
	msgs := m.session.Messages(topic.ID)
	if len(msgs) == 0 {
		return fmt.Sprintf("Topic: %s. No messages yet.", topic.Label)
	}
	var b strings.Builder
	n := 0 // position in m.sources
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		switch msg.Role {
		case chat.RoleUser:
			b.WriteString(userStyle.Render(chat.UserLabel+": ") + msg.Content)
		case chat.RoleAssistant:
			b.WriteString(botStyle.Render(m.session.BotName()+": ") + msg.Content)
			for j, src := range msg.Sources {
				line := fmt.Sprintf("  [%d] %s", j+1, src)
				if n == m.srcCursor {
					line = highlightStyle.Render(line)
				} else {
					line = sourceStyle.Render(line)
				}
				n++
				b.WriteString("\n" + line)
			}
		}
	}
	return b.String()
}

var (
	bodyBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	tabStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Padding(0, 1)
	activeTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10")).Padding(0, 1)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasises the sentence sharing the most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := splitSentences(text)
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(trimAll(sentences), " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	sentences = trimAll(sentences)
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	return strings.Join(sentences, " ")
}

// splitSentences splits text at sentence punctuation and keeps any trailing
// fragment as a final sentence.
func splitSentences(text string) []string {
	var out []string
	end := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		out = append(out, text[loc[0]:loc[1]])
		end = loc[1]
	}
	if rest := strings.TrimSpace(text[end:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func trimAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
