// Package overlay is the terminal view of a tracking session.
package overlay

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"TorchLedger/internal/app"
	"TorchLedger/internal/export"
	"TorchLedger/internal/pricing"
)

// Controller is the part of *app.App the overlay drives.
type Controller interface {
	UIState() app.UIState
	Start(fromStart bool) error
	Stop()
	Running() bool
	TogglePause()
	Reset()
	BeginInit() bool
	ToggleTax() bool
	CycleFilter() pricing.Filter
	Export(path string, currentMap bool) (export.Summary, error)
}

// Options configures the overlay.
type Options struct {
	Controller Controller
	// FromStart replays the log from the beginning when tracking starts.
	FromStart bool
	// AutoStart begins tracking as soon as the overlay opens.
	AutoStart bool
	// ExportDir receives spreadsheets written with the export key.
	ExportDir string
	// Tick is the refresh interval. Defaults to one second.
	Tick time.Duration
	// Now overrides the clock used for export file names.
	Now func() time.Time
	// Opacity below 1 dims the overlay.
	Opacity float64
}

// Model is the bubbletea model of the overlay.
type Model struct {
	opts    Options
	ctrl    Controller
	keys    keyMap
	help    help.Model
	theme   theme
	drops   table.Model
	state   app.UIState
	showAll bool
	flash   string
	width   int
	height  int
	ready   bool
}

type tickMsg time.Time

type exportedMsg struct {
	sum export.Summary
	err error
}

type startedMsg struct{ err error }

// New builds the overlay model.
func New(opts Options) Model {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ExportDir == "" {
		opts.ExportDir = "."
	}
	t := table.New(
		table.WithColumns(dropColumns(60)),
		table.WithFocused(false),
		table.WithHeight(10),
	)
	st := table.DefaultStyles()
	st.Header = st.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	st.Selected = lipgloss.NewStyle()
	t.SetStyles(st)

	m := Model{
		opts:  opts,
		ctrl:  opts.Controller,
		keys:  defaultKeyMap(),
		help:  help.New(),
		theme: newTheme(opts.Opacity),
		drops: t,
	}
	if m.ctrl != nil {
		m.state = m.ctrl.UIState()
		m.refreshTable()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tea.EnterAltScreen, tickCmd(m.opts.Tick)}
	if m.opts.AutoStart && m.ctrl != nil && !m.ctrl.Running() {
		cmds = append(cmds, m.startCmd())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layout()
		return m, nil
	case tickMsg:
		m.pull()
		return m, tickCmd(m.opts.Tick)
	case startedMsg:
		if msg.err != nil {
			m.flash = "start failed: " + msg.err.Error()
		} else {
			m.flash = "tracking started"
		}
		m.pull()
		return m, nil
	case exportedMsg:
		if msg.err != nil {
			m.flash = "export failed: " + msg.err.Error()
		} else {
			m.flash = fmt.Sprintf("exported %d items to %s", msg.sum.Items, msg.sum.Path)
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.ctrl == nil {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.StartStop):
		if m.ctrl.Running() {
			m.ctrl.Stop()
			m.flash = "tracking stopped"
			m.pull()
			return m, nil
		}
		return m, m.startCmd()
	case key.Matches(msg, m.keys.Pause):
		m.ctrl.TogglePause()
	case key.Matches(msg, m.keys.Reset):
		m.ctrl.Reset()
		m.flash = "statistics reset"
	case key.Matches(msg, m.keys.Init):
		if m.ctrl.BeginInit() {
			m.flash = "waiting for inventory: sort the bag in game"
		}
	case key.Matches(msg, m.keys.Tax):
		if m.ctrl.ToggleTax() {
			m.flash = "tax on"
		} else {
			m.flash = "tax off"
		}
	case key.Matches(msg, m.keys.Filter):
		m.flash = "filter: " + string(m.ctrl.CycleFilter())
	case key.Matches(msg, m.keys.Scope):
		m.showAll = !m.showAll
		m.refreshTable()
		return m, nil
	case key.Matches(msg, m.keys.Export):
		return m, m.exportCmd()
	default:
		return m, nil
	}
	m.pull()
	return m, nil
}

func (m Model) startCmd() tea.Cmd {
	ctrl, fromStart := m.ctrl, m.opts.FromStart
	return func() tea.Msg {
		return startedMsg{err: ctrl.Start(fromStart)}
	}
}

func (m Model) exportCmd() tea.Cmd {
	ctrl := m.ctrl
	name := fmt.Sprintf("drops_%s.xlsx", m.opts.Now().Format("20060102_150405"))
	path := filepath.Join(m.opts.ExportDir, name)
	current := !m.showAll
	return func() tea.Msg {
		sum, err := ctrl.Export(path, current)
		return exportedMsg{sum: sum, err: err}
	}
}

func (m *Model) pull() {
	if m.ctrl == nil {
		return
	}
	m.state = m.ctrl.UIState()
	m.refreshTable()
}

func (m *Model) layout() {
	w := m.width - 2
	if w < 40 {
		w = 40
	}
	m.drops.SetColumns(dropColumns(w))
	h := m.height - 14
	if h < 3 {
		h = 3
	}
	m.drops.SetHeight(h)
	m.help.Width = m.width
}

func (m *Model) refreshTable() {
	tally := m.state.Tally
	if m.showAll {
		tally = m.state.AllTally
	}
	items := app.SortedDrops(tally, pricing.Filter(m.state.Filter))
	rows := make([]table.Row, 0, len(items))
	for _, it := range items {
		price, value := "-", "-"
		if it.Known {
			price = strconv.FormatFloat(it.Price, 'f', 4, 64)
			value = strconv.FormatFloat(it.Value, 'f', 2, 64)
		}
		rows = append(rows, table.Row{it.Freshness, it.Name, strconv.Itoa(it.Count), price, value})
	}
	m.drops.SetRows(rows)
}

func dropColumns(width int) []table.Column {
	fixed := 3 + 7 + 10 + 10
	name := width - fixed - 10
	if name < 12 {
		name = 12
	}
	return []table.Column{
		{Title: "", Width: 3},
		{Title: "Item", Width: name},
		{Title: "Qty", Width: 7},
		{Title: "Each", Width: 10},
		{Title: "Value", Width: 10},
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	th := m.theme
	st := m.state

	title := th.title.Render("TorchLedger")
	if st.LogPath != "" {
		title += " " + th.muted.Render(truncate(st.LogPath, m.width-14))
	}

	cards := lipgloss.JoinHorizontal(lipgloss.Top, m.statusCard(), " ", m.incomeCard())

	scope := "this map"
	if m.showAll {
		scope = "all maps"
	}
	filter := st.Filter
	if filter == "" {
		filter = string(pricing.FilterAll)
	}
	dropsTitle := th.label.Render(fmt.Sprintf("Drops (%s, filter: %s)", scope, filter))

	var b strings.Builder
	b.WriteString(title + "\n")
	b.WriteString(cards + "\n")
	b.WriteString(dropsTitle + "\n")
	b.WriteString(m.drops.View() + "\n")
	if hint := m.hint(); hint != "" {
		b.WriteString(th.warning.Render(hint) + "\n")
	}
	if m.flash != "" {
		b.WriteString(th.muted.Render(m.flash) + "\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) statusCard() string {
	th, st := m.theme, m.state
	var status string
	switch {
	case !st.Running:
		status = th.muted.Render("stopped")
	case st.SessionPaused:
		status = th.warning.Render("paused")
	case st.InMap:
		status = th.good.Render("in map")
	default:
		status = th.label.Render("idle")
	}
	lines := []string{
		th.label.Render("Status   ") + status,
		th.label.Render("Map time ") + th.value.Render(formatClock(st.MapDurationMs)),
		th.label.Render("Maps     ") + th.value.Render(strconv.Itoa(st.MapCount)),
		th.label.Render("In maps  ") + th.value.Render(formatClock(st.TotalTimeMs)),
	}
	return th.card.Render(strings.Join(lines, "\n"))
}

func (m Model) incomeCard() string {
	th, st := m.theme, m.state
	tax := "off"
	if st.Tax {
		tax = "on"
	}
	lines := []string{
		th.label.Render("This map ") + th.money(st.MapIncome),
		th.label.Render("Total    ") + th.money(st.TotalIncome),
		th.label.Render("Per min  ") + th.value.Render(formatFE(st.TotalPerMinute)),
		th.label.Render("Per hour ") + th.value.Render(formatFE(st.EarningsPerHour)) + th.muted.Render("  tax "+tax),
	}
	return th.card.Render(strings.Join(lines, "\n"))
}

func (m Model) hint() string {
	st := m.state
	switch {
	case st.AwaitingInit:
		return "Initializing: sort your bag in game to capture the inventory."
	case st.Running && !st.Initialized:
		return "Inventory not initialized: press i, then sort your bag in game."
	case len(st.Pending) > 0:
		return fmt.Sprintf("%d item(s) without a price entry", len(st.Pending))
	}
	return ""
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Run opens the overlay and blocks until the user quits. Tracking is stopped
// on the way out.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	if opts.Controller != nil && opts.Controller.Running() {
		opts.Controller.Stop()
	}
	return err
}
