package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rmax-ai/topolord/pkg/dot"
	"github.com/rmax-ai/topolord/pkg/navigator"
)

const (
	requestTimeout = 15 * time.Second
	listWidth      = 40
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	crumbStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	activeCrumbStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)

	focusedPaneStyle = paneStyle.BorderForeground(lipgloss.Color("205"))
)

// Cache invalidation is optional: a local loader has nothing to flush.
type invalidator interface {
	InvalidateCache(ctx context.Context, key string) error
}

type nodeItem struct {
	key string
	m   dot.NodeIDMapping
}

func (i nodeItem) Title() string { return i.m.Label }

func (i nodeItem) Description() string {
	kind := string(i.m.Type)
	if i.m.Subtype != "" {
		kind = i.m.Subtype
	}
	return kind + " · " + i.m.DataID
}

func (i nodeItem) FilterValue() string { return i.m.Label + " " + i.m.DataID }

func nodeItems(m dot.Mappings) []list.Item {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]list.Item, 0, len(keys))
	for _, k := range keys {
		items = append(items, nodeItem{key: k, m: m[k]})
	}
	return items
}

type viewMsg struct {
	view *navigator.View
	err  error
}

type model struct {
	session *navigator.Session
	cache   invalidator

	spinner  spinner.Model
	nodes    list.Model
	preview  viewport.Model
	loading  bool
	focusDOT bool
	err      error
	width    int
	height   int
}

func newModel(session *navigator.Session, inv invalidator) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	l := list.New(nil, list.NewDefaultDelegate(), listWidth, 20)
	l.Title = "Nodes"
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.SetShowStatusBar(false)
	l.DisableQuitKeybindings()

	return model{
		session: session,
		cache:   inv,
		spinner: s,
		nodes:   l,
		preview: viewport.New(60, 20),
		loading: true,
	}
}

// navigate runs a session step off the UI goroutine.
func navigate(step func(ctx context.Context) (*navigator.View, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		v, err := step(ctx)
		return viewMsg{view: v, err: err}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, navigate(m.session.Reload))
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit, true
	case "tab":
		m.focusDOT = !m.focusDOT
		return m, nil, true
	case "enter":
		item, ok := m.nodes.SelectedItem().(nodeItem)
		if !ok {
			return m, nil, true
		}
		m.loading = true
		return m, navigate(func(ctx context.Context) (*navigator.View, error) {
			return m.session.Click(ctx, item.key)
		}), true
	case "backspace":
		m.loading = true
		return m, navigate(m.session.Up), true
	case "r":
		m.loading = true
		session, inv := m.session, m.cache
		return m, navigate(func(ctx context.Context) (*navigator.View, error) {
			if inv != nil {
				if err := inv.InvalidateCache(ctx, ""); err != nil {
					return nil, err
				}
			}
			return session.Reload(ctx)
		}), true
	}
	if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
		index := int(key[0]-'0') - 1 // 0 is "all", 1 the first breadcrumb
		m.loading = true
		return m, navigate(func(ctx context.Context) (*navigator.View, error) {
			return m.session.Breadcrumb(ctx, index)
		}), true
	}
	return m, nil, false
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if next, cmd, handled := m.handleKey(msg); handled {
			return next, cmd
		}
		if m.focusDOT {
			m.preview, cmd = m.preview.Update(msg)
		} else {
			m.nodes, cmd = m.nodes.Update(msg)
		}
		return m, cmd

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case viewMsg:
		if errors.Is(msg.err, navigator.ErrStale) {
			return m, nil
		}
		m.loading = false
		m.err = msg.err
		if msg.view != nil {
			cmds = append(cmds, m.nodes.SetItems(nodeItems(msg.view.Graph.Mappings)))
			m.nodes.Select(0)
			m.preview.SetContent(previewText(msg.view))
			m.preview.GotoTop()
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		bodyHeight := msg.Height - 8
		if bodyHeight < 5 {
			bodyHeight = 5
		}
		m.nodes.SetSize(listWidth, bodyHeight)
		m.preview.Width = msg.Width - listWidth - 8
		m.preview.Height = bodyHeight
	}

	return m, tea.Batch(cmds...)
}

func previewText(v *navigator.View) string {
	var sb strings.Builder
	if v.Details != nil {
		sb.WriteString(fmt.Sprintf("%s\n%d slots", v.Details.Label, len(v.Details.Slots)))
		if v.Details.OS != nil {
			sb.WriteString(fmt.Sprintf(" · %s %s", v.Details.OS.Distribution, v.Details.OS.Kernel))
		}
		sb.WriteString("\n\n")
	}
	sb.WriteString(v.Graph.Text)
	for _, w := range v.Warnings {
		sb.WriteString("\n" + warnStyle.Render("! "+w))
	}
	return sb.String()
}

func (m model) breadcrumbs() string {
	st := m.session.State()
	parts := []string{"0 all"}
	for i, b := range st.Breadcrumbs {
		parts = append(parts, fmt.Sprintf("%d %s", i+1, b.Label))
	}
	for i, p := range parts {
		if i == len(parts)-1 {
			parts[i] = activeCrumbStyle.Render(p)
		} else {
			parts[i] = crumbStyle.Render(p)
		}
	}
	return strings.Join(parts, subtleStyle.Render(" › "))
}

func (m model) View() string {
	header := headerStyle.Render(m.breadcrumbs())

	listPane, dotPane := focusedPaneStyle, paneStyle
	if m.focusDOT {
		listPane, dotPane = paneStyle, focusedPaneStyle
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		listPane.Render(m.nodes.View()),
		dotPane.Render(m.preview.View()),
	)

	var status string
	switch {
	case m.loading:
		status = fmt.Sprintf("%s Loading %s...", m.spinner.View(), m.session.State().CurrentLevel)
	case m.err != nil:
		status = errorStyle.Render(fmt.Sprintf("Error: %v (r to retry)", m.err))
	default:
		status = okStyle.Render(fmt.Sprintf("Level %s", m.session.State().CurrentLevel))
	}
	footer := subtleStyle.Render(fmt.Sprintf("%s\nenter open • backspace up • 0-9 breadcrumb • tab focus • r reload • q quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}
