package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Dashboard key.Binding
	Open      key.Binding
	Finalized key.Binding
	Packaging key.Binding
	Reports   key.Binding
	Settings  key.Binding
	Refresh   key.Binding
	Logout    key.Binding
	Quit      key.Binding

	Up     key.Binding
	Down   key.Binding
	Next   key.Binding
	Prev   key.Binding
	Search key.Binding
	Store  key.Binding
	Clear  key.Binding
	Select key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Dashboard: key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "dashboard")),
		Open:      key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "em aberto")),
		Finalized: key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "finalizados")),
		Packaging: key.NewBinding(key.WithKeys("4"), key.WithHelp("4", "embalagens")),
		Reports:   key.NewBinding(key.WithKeys("5"), key.WithHelp("5", "relatórios")),
		Settings:  key.NewBinding(key.WithKeys("6"), key.WithHelp("6", "ajustes")),
		Refresh:   key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "atualizar")),
		Logout:    key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "sair da conta")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "fechar")),

		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "acima")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "abaixo")),
		Next:   key.NewBinding(key.WithKeys("right", "l", "pgdown"), key.WithHelp("→", "próx. página")),
		Prev:   key.NewBinding(key.WithKeys("left", "h", "pgup"), key.WithHelp("←", "pág. anterior")),
		Search: key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "buscar")),
		Store:  key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "loja")),
		Clear:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "limpar filtros")),
		Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "abrir")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Dashboard, k.Open, k.Finalized, k.Packaging, k.Reports, k.Settings, k.Refresh, k.Logout, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		k.ShortHelp(),
		{k.Up, k.Down, k.Next, k.Prev, k.Search, k.Store, k.Clear, k.Select},
	}
}
