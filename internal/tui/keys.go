package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/fakeyudi/cuecam/internal/session"
)

type keyMap struct {
	Start   key.Binding
	Stop    key.Binding
	Play    key.Binding
	Restart key.Binding
	Retry   key.Binding
	Accept  key.Binding
	Quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Start:   key.NewBinding(key.WithKeys("s", "enter"), key.WithHelp("s", "start recording")),
		Stop:    key.NewBinding(key.WithKeys("x", " "), key.WithHelp("x", "stop")),
		Play:    key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "play prompt")),
		Restart: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "record again")),
		Retry:   key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "retry merge")),
		Accept:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "accept")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// sync enables only the bindings the machine would accept.
func (k *keyMap) sync(m session.Machine) {
	k.Start.SetEnabled(m.CanStart())
	k.Stop.SetEnabled(m.State == session.StateRecording)
	k.Play.SetEnabled(m.State == session.StateRecording && m.Hint != "")
	k.Restart.SetEnabled(m.CanRestart())
	k.Retry.SetEnabled(m.CanRetry())
	k.Accept.SetEnabled(m.CanAccept())
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Play, k.Restart, k.Retry, k.Accept, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
