package overlay

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the overlay key bindings.
type keyMap struct {
	StartStop key.Binding
	Pause     key.Binding
	Reset     key.Binding
	Init      key.Binding
	Tax       key.Binding
	Filter    key.Binding
	Scope     key.Binding
	Export    key.Binding
	Quit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		StartStop: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start/stop")),
		Pause:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
		Reset:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),
		Init:      key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "initialize")),
		Tax:       key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "tax")),
		Filter:    key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "filter")),
		Scope:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "map/all")),
		Export:    key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "export")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.StartStop, k.Pause, k.Reset, k.Init, k.Tax, k.Filter, k.Scope, k.Export, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
