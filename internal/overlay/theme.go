package overlay

import "github.com/charmbracelet/lipgloss"

type theme struct {
	title   lipgloss.Style
	card    lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	good    lipgloss.Style
	bad     lipgloss.Style
	muted   lipgloss.Style
	warning lipgloss.Style
}

// newTheme builds the overlay styles. An opacity below 1 renders everything faint.
func newTheme(opacity float64) theme {
	accent := lipgloss.Color("#F4A259")
	t := theme{
		title:   lipgloss.NewStyle().Bold(true).Foreground(accent),
		card:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#5C5F77")).Padding(0, 1),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA0B0")),
		value:   lipgloss.NewStyle().Bold(true),
		good:    lipgloss.NewStyle().Foreground(lipgloss.Color("#40A02B")),
		bad:     lipgloss.NewStyle().Foreground(lipgloss.Color("#D20F39")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6F85")),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("#DF8E1D")),
	}
	if opacity > 0 && opacity < 1 {
		for _, s := range []*lipgloss.Style{&t.title, &t.card, &t.label, &t.value, &t.good, &t.bad, &t.muted, &t.warning} {
			*s = s.Faint(true)
		}
	}
	return t
}

func (t theme) money(v float64) string {
	s := formatFE(v)
	if v < 0 {
		return t.bad.Render(s)
	}
	return t.good.Render(s)
}
