// Package app is the terminal dashboard: a Bubble Tea model that polls the
// daemon and drives its manual inputs from the keyboard.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ble-pacer.klederson.com/internal/bluetooth"
	"ble-pacer.klederson.com/internal/config"
	"ble-pacer.klederson.com/internal/daemon"
	"ble-pacer.klederson.com/internal/scan"
	"ble-pacer.klederson.com/internal/ui"
)

// requestTimeout bounds each call into the daemon so a stopped loop cannot
// hang the dashboard.
const requestTimeout = time.Second

// Backend is the part of the daemon the dashboard uses.
type Backend interface {
	Snapshot(ctx context.Context) (daemon.Snapshot, error)
	Sessions(ctx context.Context) ([]scan.SessionInfo, error)
	Devices() []bluetooth.Device
	ToggleScreen() (bool, error)
	TriggerMotion() error
	AddSession(ctx context.Context, sc config.SessionConfig) (scan.SessionInfo, error)
	RemoveNewestSession(ctx context.Context) error
}

var _ Backend = (*daemon.Service)(nil)

// shared holds state that must survive Bubble Tea's model copies.
type shared struct {
	nextSession int
}

// AppModel is the root Bubble Tea model for the dashboard.
type AppModel struct {
	width  int
	height int

	backend     Backend
	idleTimeout time.Duration
	now         func() time.Time
	cursor      int
	keys        KeyMap
	help        help.Model

	shared *shared

	// Last refresh
	snap     daemon.Snapshot
	sessions []scan.SessionInfo
	devices  []bluetooth.Device
	err      error
}

// New creates a dashboard over backend. idleTimeout scales the countdown bar.
func New(backend Backend, idleTimeout time.Duration) AppModel {
	return AppModel{
		backend:     backend,
		idleTimeout: idleTimeout,
		now:         time.Now,
		keys:        DefaultKeyMap(),
		help:        help.New(),
		shared:      &shared{nextSession: 1},
	}
}

func (m AppModel) Init() tea.Cmd {
	return m.refreshCmd()
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TickMsg:
		return m, m.refreshCmd()

	case RefreshMsg:
		// The next tick is only scheduled once a refresh lands, so at most
		// one request is in flight.
		if msg.Err != nil {
			m.err = msg.Err
			return m, tickCmd()
		}
		m.err = nil
		m.snap = msg.Snapshot
		m.sessions = msg.Sessions
		m.devices = msg.Devices
		if m.cursor >= len(m.devices) {
			m.cursor = max(0, len(m.devices)-1)
		}
		return m, tickCmd()

	case ActionMsg:
		if msg.Err != nil {
			m.err = fmt.Errorf("%s: %w", msg.Action, msg.Err)
		}
		return m, nil
	}

	return m, nil
}

func (m AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.Screen):
		return m, m.action("toggle screen", func(context.Context) error {
			_, err := m.backend.ToggleScreen()
			return err
		})

	case key.Matches(msg, m.keys.Motion):
		return m, m.action("trigger motion", func(context.Context) error {
			return m.backend.TriggerMotion()
		})

	case key.Matches(msg, m.keys.Add):
		name := fmt.Sprintf("session-%d", m.shared.nextSession)
		m.shared.nextSession++
		return m, m.action("add session", func(ctx context.Context) error {
			_, err := m.backend.AddSession(ctx, config.SessionConfig{Name: name, CallbackType: "all"})
			return err
		})

	case key.Matches(msg, m.keys.Remove):
		return m, m.action("remove session", func(ctx context.Context) error {
			return m.backend.RemoveNewestSession(ctx)
		})

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.devices)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Top):
		m.cursor = 0

	case key.Matches(msg, m.keys.End):
		if len(m.devices) > 0 {
			m.cursor = len(m.devices) - 1
		}
	}

	return m, nil
}

func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing " + config.AppName + "..."
	}

	var helpView string
	if m.help.ShowAll {
		helpView = m.help.View(m.keys)
	}

	menuH := 1
	statusH := 1
	if helpView != "" {
		statusH += lipgloss.Height(helpView)
	}
	bodyH := m.height - menuH - statusH
	if bodyH < 5 {
		bodyH = 5
	}

	stateW := m.width / 2
	if stateW < 40 {
		stateW = 40
	}
	listW := m.width - stateW
	if listW < 20 {
		listW = 20
		stateW = m.width - listW
	}

	now := m.now()
	menuBar := ui.RenderMenuBar(m.width, m.snap.Transport.Radio, m.snap.Controller.State)
	statePanel := ui.RenderStatePanel(ui.StateView{
		Snapshot:    m.snap,
		Sessions:    m.sessions,
		IdleTimeout: m.idleTimeout,
		Now:         now,
	}, stateW, bodyH)
	deviceList := ui.RenderDeviceList(m.devices, listW, bodyH, m.cursor, now)
	statusBar := ui.RenderStatusBar(m.width, m.snap, now, m.err)
	if helpView != "" {
		statusBar = lipgloss.JoinVertical(lipgloss.Left, statusBar, helpView)
	}

	return ui.ComposeLayout(menuBar, statePanel, deviceList, statusBar)
}

// refreshCmd fetches a snapshot off the UI goroutine; the daemon calls block
// on its dispatch loop.
func (m AppModel) refreshCmd() tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		snap, err := backend.Snapshot(ctx)
		if err != nil {
			return RefreshMsg{Err: err}
		}
		sessions, err := backend.Sessions(ctx)
		if err != nil {
			return RefreshMsg{Err: err}
		}
		return RefreshMsg{Snapshot: snap, Sessions: sessions, Devices: backend.Devices()}
	}
}

func (m AppModel) action(name string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return ActionMsg{Action: name, Err: fn(ctx)}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(config.TargetFPS), func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
