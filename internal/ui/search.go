package ui

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NguyenDuy1910/chatbot/internal/search"
	"github.com/NguyenDuy1910/chatbot/pkg/retrieval"
)

// Searcher answers hybrid and "/sql" queries.
type Searcher interface {
	Query(ctx context.Context, input string, opts search.SearchOptions) (*retrieval.QueryResponse, error)
}

// SearchConfig configures the interactive search screen.
type SearchConfig struct {
	Output  io.Writer
	Input   io.Reader
	NoColor bool
	TopN    int
	// Timeout bounds each query. Zero means no extra bound.
	Timeout time.Duration
}

// RunSearch runs the interactive search screen until the user quits.
func RunSearch(ctx context.Context, s Searcher, cfg SearchConfig) error {
	m := newSearchModel(ctx, s, cfg)
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if cfg.Output != nil {
		opts = append(opts, tea.WithOutput(cfg.Output))
	}
	if cfg.Input != nil {
		opts = append(opts, tea.WithInput(cfg.Input))
	}
	_, err := tea.NewProgram(m, opts...).Run()
	return err
}

// hit is one row of the result list in either mode.
type hit struct {
	id      string
	score   string
	summary string
	detail  string
}

type queryDoneMsg struct {
	query string
	mode  string
	hits  []hit
	took  time.Duration
	err   error
}

type searchModel struct {
	ctx      context.Context
	searcher Searcher
	cfg      SearchConfig
	styles   Styles

	input   textinput.Model
	spinner spinner.Model
	width   int
	height  int

	running bool
	last    queryDoneMsg
	cursor  int
}

func newSearchModel(ctx context.Context, s Searcher, cfg SearchConfig) *searchModel {
	in := textinput.New()
	in.Placeholder = "search text, or /sql WHERE year >= 2013 ORDER BY year DESC"
	in.Prompt = "› "
	in.CharLimit = 1024
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	styles := DefaultStyles()
	if cfg.NoColor || DetectNoColor() {
		styles = NoColorStyles()
	}
	return &searchModel{
		ctx:      ctx,
		searcher: s,
		cfg:      cfg,
		styles:   styles,
		input:    in,
		spinner:  sp,
		width:    80,
		height:   24,
	}
}

// Init implements tea.Model.
func (m *searchModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m *searchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			query := strings.TrimSpace(m.input.Value())
			if query == "" || m.running {
				return m, nil
			}
			m.running = true
			return m, tea.Batch(m.spinner.Tick, m.runQuery(query))
		case tea.KeyUp, tea.KeyCtrlP:
			m.cursor = max(m.cursor-1, 0)
			return m, nil
		case tea.KeyDown, tea.KeyCtrlN:
			m.cursor = min(m.cursor+1, max(len(m.last.hits)-1, 0))
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-6, 20)
		return m, nil
	case queryDoneMsg:
		m.running = false
		m.last = msg
		m.cursor = 0
		return m, nil
	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *searchModel) runQuery(query string) tea.Cmd {
	return func() tea.Msg {
		ctx := m.ctx
		if m.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
			defer cancel()
		}
		start := time.Now()
		resp, err := m.searcher.Query(ctx, query, search.SearchOptions{TopN: m.cfg.TopN})
		done := queryDoneMsg{query: query, took: time.Since(start), err: err}
		if err == nil {
			done.mode = resp.Mode
			done.hits = toHits(resp)
		}
		return done
	}
}

func toHits(resp *retrieval.QueryResponse) []hit {
	if resp.Mode == retrieval.ModeStructured {
		hits := make([]hit, len(resp.Records))
		for i, r := range resp.Records {
			text, _ := r.Fields["text"].(string)
			hits[i] = hit{id: r.ID, summary: firstLine(text), detail: fieldsDetail(r.Fields)}
		}
		return hits
	}
	hits := make([]hit, len(resp.Results))
	for i, r := range resp.Results {
		hits[i] = hit{
			id:      r.ID,
			score:   fmt.Sprintf("%.2f", r.Score),
			summary: firstLine(r.Text),
			detail: fmt.Sprintf("lexical %.3f  vector %.3f  version %d\n\n%s",
				r.LexicalScore, r.VectorScore, r.Version, r.Text),
		}
	}
	return hits
}

// View implements tea.Model.
func (m *searchModel) View() string {
	width := max(m.width-4, 40)
	var sb strings.Builder
	sb.WriteString(m.styles.Header.Render("Search"))
	sb.WriteString("\n")
	sb.WriteString(m.input.View())
	sb.WriteString("\n\n")

	switch {
	case m.running:
		sb.WriteString(m.spinner.View() + " searching...")
	case m.last.err != nil:
		sb.WriteString(m.styles.Error.Render("✗ " + m.last.err.Error()))
	case m.last.query == "":
		sb.WriteString(m.styles.Dim.Render("enter to search • ↑/↓ to browse • esc to quit"))
	case len(m.last.hits) == 0:
		sb.WriteString(m.styles.Dim.Render(fmt.Sprintf("no results for %q", m.last.query)))
	default:
		sb.WriteString(m.renderHits(width))
	}
	return sb.String() + "\n"
}

func (m *searchModel) renderHits(width int) string {
	lines := []string{m.styles.Label.Render(fmt.Sprintf("%d %s result(s) in %s",
		len(m.last.hits), m.last.mode, m.last.took.Round(time.Millisecond)))}

	for i, h := range m.last.hits {
		line := fmt.Sprintf("%2d. %s", i+1, h.id)
		if h.score != "" {
			line += " " + m.styles.Score.Render("("+h.score+")")
		}
		line += "  " + m.styles.Dim.Render(truncate(h.summary, max(width-len(h.id)-16, 10)))
		if i == m.cursor {
			line = m.styles.Selected.Render("▸ ") + line
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}

	if m.cursor < len(m.last.hits) {
		detail := m.last.hits[m.cursor].detail
		lines = append(lines, "", m.styles.Panel.Width(width).Render(detail))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func fieldsDetail(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != "text" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %v\n", k, fields[k])
	}
	if text, ok := fields["text"].(string); ok {
		sb.WriteString("\n" + text)
	}
	return strings.TrimRight(sb.String(), "\n")
}
