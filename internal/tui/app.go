// Package tui renders the predict and train widgets in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ducphuonguit/federated-learning/internal/client"
	"github.com/ducphuonguit/federated-learning/internal/widget"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type tab int

const (
	tabPredict tab = iota
	tabTrain
)

const (
	toastTTL     = 4 * time.Second
	maxToasts    = 3
	eventBacklog = 64
)

// Messages delivered from widget goroutines to the program.
type (
	notificationMsg struct{ n widget.Notification }
	changedMsg      struct{}
	submitDoneMsg   struct {
		tab tab
		err error
	}
	toastExpiredMsg struct{ id int }
)

type toast struct {
	id int
	widget.Notification
}

type Model struct {
	predict *widget.PredictWidget
	train   *widget.TrainWidget
	events  chan tea.Msg

	tab         tab
	focus       int
	imageInput  textinput.Model
	trainInputs []textinput.Model
	// applied holds the path last passed to SelectFile for each input.
	appliedImage string
	appliedTrain []string

	toasts    []toast
	nextToast int

	width    int
	height   int
	quitting bool
}

func newPathInput(placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 500
	ti.Width = 50
	return ti
}

func NewModel(predictor widget.Predictor, backend widget.TrainingBackend, pollInterval time.Duration) *Model {
	m := &Model{
		events:       make(chan tea.Msg, eventBacklog),
		imageInput:   newPathInput("digit.png"),
		appliedTrain: make([]string, len(widget.Slots)),
		width:        100,
		height:       30,
	}

	for _, slot := range widget.Slots {
		m.trainInputs = append(m.trainInputs, newPathInput(slot.String()+" file"))
	}

	notifier := widget.NotifierFunc(func(n widget.Notification) {
		select {
		case m.events <- notificationMsg{n: n}:
		default:
		}
	})
	onChange := func() {
		select {
		case m.events <- changedMsg{}:
		default:
		}
	}

	m.predict = widget.NewPredictWidget(predictor, widget.WithNotifier(notifier), widget.WithOnChange(onChange))
	m.train = widget.NewTrainWidget(backend,
		widget.WithNotifier(notifier),
		widget.WithOnChange(onChange),
		widget.WithPollInterval(pollInterval),
	)

	m.imageInput.Focus()
	return m
}

// Close stops both widgets. No request is issued after it returns.
func (m *Model) Close() {
	m.predict.Close()
	m.train.Close()
}

func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case notificationMsg:
		return m, tea.Batch(m.addToast(msg.n), m.waitForEvent())

	case changedMsg:
		return m, m.waitForEvent()

	case submitDoneMsg:
		return m, nil

	case toastExpiredMsg:
		m.removeToast(msg.id)
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}

	return m, nil
}

func (m *Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		m.Close()
		return m, tea.Quit

	case "f1":
		m.switchTab(tabPredict)
		return m, nil

	case "f2":
		m.switchTab(tabTrain)
		return m, nil

	case "tab", "down":
		m.moveFocus(1)
		return m, nil

	case "shift+tab", "up":
		m.moveFocus(-1)
		return m, nil

	case "enter":
		return m, m.submit()
	}

	var cmd tea.Cmd
	input := m.focusedInput()
	*input, cmd = input.Update(msg)
	return m, cmd
}

func (m *Model) inputCount() int {
	if m.tab == tabPredict {
		return 1
	}
	return len(m.trainInputs)
}

func (m *Model) focusedInput() *textinput.Model {
	if m.tab == tabPredict {
		return &m.imageInput
	}
	return &m.trainInputs[m.focus]
}

func (m *Model) switchTab(t tab) {
	m.applySelection()
	m.focusedInput().Blur()
	m.tab = t
	m.focus = 0
	m.focusedInput().Focus()
}

func (m *Model) moveFocus(delta int) {
	m.applySelection()
	m.focusedInput().Blur()
	n := m.inputCount()
	m.focus = (m.focus + delta + n) % n
	m.focusedInput().Focus()
}

func selectedFile(path string) client.File {
	if path == "" {
		return nil
	}
	return client.LocalFile(path)
}

// applySelection hands changed input values to the widgets. Unchanged paths
// are not reselected so an existing result survives focus moves.
func (m *Model) applySelection() {
	if path := strings.TrimSpace(m.imageInput.Value()); path != m.appliedImage {
		m.appliedImage = path
		m.predict.SelectFile(selectedFile(path))
	}

	for i, slot := range widget.Slots {
		if path := strings.TrimSpace(m.trainInputs[i].Value()); path != m.appliedTrain[i] {
			m.appliedTrain[i] = path
			m.train.SelectFile(slot, selectedFile(path))
		}
	}
}

// submit runs the submission off the UI goroutine.
func (m *Model) submit() tea.Cmd {
	m.applySelection()

	current := m.tab
	return func() tea.Msg {
		var err error
		if current == tabPredict {
			err = m.predict.Submit(context.Background())
		} else {
			err = m.train.Submit(context.Background())
		}
		return submitDoneMsg{tab: current, err: err}
	}
}

func (m *Model) addToast(n widget.Notification) tea.Cmd {
	m.nextToast++
	id := m.nextToast
	m.toasts = append(m.toasts, toast{id: id, Notification: n})
	if len(m.toasts) > maxToasts {
		m.toasts = m.toasts[len(m.toasts)-maxToasts:]
	}
	return tea.Tick(toastTTL, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: id}
	})
}

func (m *Model) removeToast(id int) {
	for i, t := range m.toasts {
		if t.id == id {
			m.toasts = append(m.toasts[:i], m.toasts[i+1:]...)
			return
		}
	}
}

func (m *Model) viewTabs() string {
	names := []string{"F1 Predict", "F2 Train"}
	var parts []string
	for i, name := range names {
		if tab(i) == m.tab {
			parts = append(parts, activeTabStyle.Render(name))
		} else {
			parts = append(parts, tabStyle.Render(name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) field(label string, input textinput.Model, focused bool) string {
	style := labelStyle
	if focused {
		style = focusedLabelStyle
	}
	return style.Render(label) + " " + input.View()
}

func (m *Model) viewPanel() string {
	var b strings.Builder
	if m.tab == tabPredict {
		b.WriteString(m.field("Image:", m.imageInput, true))
		b.WriteString("\n\n")
		b.WriteString(m.predict.View())
	} else {
		for i, slot := range widget.Slots {
			b.WriteString(m.field(slot.String()+":", m.trainInputs[i], i == m.focus))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(m.train.View())
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func (m *Model) viewToasts() string {
	var lines []string
	for _, t := range m.toasts {
		style := successToastStyle
		if t.Level == widget.LevelError {
			style = errorToastStyle
		}
		lines = append(lines, style.Render(t.Message))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	help := helpStyle.Render("Enter: submit  Tab: next field  F1/F2: switch tab  Esc: quit")

	sections := []string{
		titleStyle.Render("Federated Learning Client"),
		m.viewTabs(),
		m.viewPanel(),
	}
	if toasts := m.viewToasts(); toasts != "" {
		sections = append(sections, toasts)
	}
	sections = append(sections, help)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// Run starts the program and closes the widgets when it exits.
func Run(m *Model, opts ...tea.ProgramOption) error {
	defer m.Close()

	if _, err := tea.NewProgram(m, opts...).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running terminal ui: %w", err)
	}
	return nil
}
