package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/internal/services/events"
	"github.com/jwebster45206/token-orientation/internal/tokens"
	"github.com/jwebster45206/token-orientation/pkg/actor"
	"github.com/jwebster45206/token-orientation/pkg/orientation"
	"github.com/muesli/reflow/wordwrap"
)

const (
	PlaceHolderText = "Arrows move, Shift+arrows queue, /help for commands"
	requestTimeout  = 10 * time.Second
	maxLogEntries   = 500
)

// ConsoleUI is the BubbleTea model that drives one token.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config    *ConsoleConfig
	api       *apiClient
	tokenID   uuid.UUID
	eventChan <-chan events.Event
	streamErr <-chan error

	token *actor.Token
	actor *actor.Actor
	last  *orientation.Result

	logViewport  viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	log          []logEntry
	ready        bool
	width        int
	height       int
	busy         bool

	showQuitModal bool
}

type logEntry struct {
	at    time.Time
	style lipgloss.Style
	text  string
}

type tokenLoadedMsg struct {
	token *actor.Token
	actor *actor.Actor
	err   error
}

type updateMsg struct {
	res *tokens.UpdateResult
	err error
}

type previewMsg struct {
	res *orientation.Result
	err error
}

type queuedMsg struct {
	requestID string
	err       error
}

type actorMsg struct {
	actor *actor.Actor
	err   error
}

type eventMsg struct {
	event events.Event
}

type streamClosedMsg struct {
	err error
}

type noticeMsg struct {
	text string
	err  error
}

var (
	logPanelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingLeft(2)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")) // purple

	moveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	imageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	queuedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(cfg *ConsoleConfig, api *apiClient, tokenID uuid.UUID, eventChan <-chan events.Event, streamErr <-chan error) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 200
	ta.SetWidth(50)
	ta.SetHeight(1)
	ta.ShowLineNumbers = false

	logVp := viewport.New(50, 20)
	logVp.MouseWheelEnabled = true

	return ConsoleUI{
		config:       cfg,
		api:          api,
		tokenID:      tokenID,
		eventChan:    eventChan,
		streamErr:    streamErr,
		textarea:     ta,
		logViewport:  logVp,
		metaViewport: viewport.New(30, 20),
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.loadToken(), m.waitForEvent())
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.logViewport, vpCmd = m.logViewport.Update(msg)
		return m, vpCmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.ready = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyCtrlY:
			return m, m.copyTexture()
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			m.textarea.Reset()
			if input == "" {
				return m, nil
			}
			return m.handleCommand(input)
		}

		// Arrows drive the token while the command line is empty.
		if dx, dy, queued, ok := arrowDelta(msg.Type); ok && m.textarea.Value() == "" {
			if m.token == nil || m.busy {
				return m, nil
			}
			m.busy = !queued
			return m, m.move(dx*m.config.Step, dy*m.config.Step, queued)
		}

	case tokenLoadedMsg:
		if msg.err != nil {
			m.addLog(errorStyle, "Failed to load token: "+msg.err.Error())
		} else {
			m.token = msg.token
			m.actor = msg.actor
		}
		m.refresh()
		return m, nil

	case updateMsg:
		m.busy = false
		if msg.err != nil {
			m.addLog(errorStyle, "Move failed: "+msg.err.Error())
		} else {
			m.token = msg.res.Token
			if msg.res.Orientation != nil {
				m.last = msg.res.Orientation
			}
			if msg.res.OrientationError != "" {
				m.addLog(errorStyle, "Orientation write failed: "+msg.res.OrientationError)
			}
		}
		m.refresh()
		return m, nil

	case previewMsg:
		if msg.err != nil {
			m.addLog(errorStyle, "Preview failed: "+msg.err.Error())
		} else {
			m.addLog(labelStyle, "Preview: "+describeResult(*msg.res))
		}
		m.refresh()
		return m, nil

	case queuedMsg:
		if msg.err != nil {
			m.addLog(errorStyle, "Queue failed: "+msg.err.Error())
			m.refresh()
		}
		return m, nil

	case actorMsg:
		if msg.err != nil {
			m.addLog(errorStyle, "Actor update failed: "+msg.err.Error())
		} else {
			m.actor = msg.actor
		}
		m.refresh()
		return m, nil

	case eventMsg:
		m.addLog(eventStyle(msg.event.Type), formatEvent(msg.event))
		m.refresh()
		// Worker moves only reach the console through events.
		if msg.event.Type == events.EventTypeTokenMoved || msg.event.Type == events.EventTypeTextureUpdated {
			return m, tea.Batch(m.waitForEvent(), m.loadToken())
		}
		return m, m.waitForEvent()

	case streamClosedMsg:
		text := "Event stream closed"
		if msg.err != nil {
			text += ": " + msg.err.Error()
		}
		m.addLog(errorStyle, text)
		m.refresh()
		return m, nil

	case noticeMsg:
		if msg.err != nil {
			m.addLog(errorStyle, msg.err.Error())
		} else {
			m.addLog(promptStyle, msg.text)
		}
		m.refresh()
		return m, nil
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.logViewport, vpCmd = m.logViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd)
}

// arrowDelta maps arrow keys to a one-step grid delta. Screen up is
// negative y, which resolves to North. Shifted arrows go through the queue.
func arrowDelta(k tea.KeyType) (dx, dy float64, queued, ok bool) {
	switch k {
	case tea.KeyUp:
		return 0, -1, false, true
	case tea.KeyDown:
		return 0, 1, false, true
	case tea.KeyLeft:
		return -1, 0, false, true
	case tea.KeyRight:
		return 1, 0, false, true
	case tea.KeyShiftUp:
		return 0, -1, true, true
	case tea.KeyShiftDown:
		return 0, 1, true, true
	case tea.KeyShiftLeft:
		return -1, 0, true, true
	case tea.KeyShiftRight:
		return 1, 0, true, true
	}
	return 0, 0, false, false
}

func (m *ConsoleUI) layout() {
	logWidth := int(float64(m.width)*0.65) - 2
	metaWidth := m.width - logWidth - 4

	m.logViewport.Width = logWidth - 2
	m.logViewport.Height = m.height - 5
	m.metaViewport.Width = metaWidth
	m.metaViewport.Height = m.height - 2
	m.textarea.SetWidth(logWidth - 4)
}

func (m *ConsoleUI) addLog(style lipgloss.Style, text string) {
	m.log = append(m.log, logEntry{at: time.Now(), style: style, text: text})
	if len(m.log) > maxLogEntries {
		m.log = m.log[len(m.log)-maxLogEntries:]
	}
}

// refresh rewraps the log for the current width and redraws the side panel.
func (m *ConsoleUI) refresh() {
	if !m.ready {
		return
	}
	m.logViewport.SetContent(renderLog(m.log, m.logViewport.Width-2))
	m.logViewport.GotoBottom()
	m.metaViewport.SetContent(writeMetadata(m.token, m.actor, m.last))
}

func renderLog(entries []logEntry, width int) string {
	if width < 20 {
		width = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("TOKEN ORIENTATION") + "\n\n")
	for _, e := range entries {
		stamp := promptStyle.Render(e.at.Format("15:04:05") + " ")
		text := wordwrap.String(e.text, width-9)
		content.WriteString(stamp + e.style.Render(text) + "\n")
	}
	return content.String()
}

func writeMetadata(tok *actor.Token, a *actor.Actor, last *orientation.Result) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("TOKEN") + "\n\n")

	if tok == nil {
		content.WriteString("Loading...\n")
		return content.String()
	}

	content.WriteString(labelStyle.Render("ID: ") + tok.ID.String()[:8] + "...\n")
	content.WriteString(labelStyle.Render("Position: ") + fmt.Sprintf("(%g, %g)\n", tok.X, tok.Y))
	content.WriteString(labelStyle.Render("Image: ") + string(tok.TextureSrc) + "\n")
	action := tok.MovementAction
	if action == "" {
		action = "(default)"
	}
	content.WriteString(labelStyle.Render("Movement: ") + action + "\n")
	content.WriteString(labelStyle.Render("In combat: ") + strconv.FormatBool(tok.InCombat) + "\n\n")

	content.WriteString(titleStyle.Render("ACTOR") + "\n\n")
	if a == nil {
		content.WriteString("None\n\n")
	} else {
		content.WriteString(labelStyle.Render("Name: ") + a.Spec.Name + "\n")
		if hp := a.Health(); hp != nil {
			content.WriteString(labelStyle.Render("HP: ") + fmt.Sprintf("%g/%g\n", hp.Value, hp.Max))
		} else {
			content.WriteString(labelStyle.Render("HP: ") + "untracked\n")
		}
		tags := a.StatusTags()
		if len(tags) == 0 {
			content.WriteString(labelStyle.Render("Status: ") + "none\n\n")
		} else {
			content.WriteString(labelStyle.Render("Status: ") + strings.Join(tags, ", ") + "\n\n")
		}
	}

	if last != nil {
		content.WriteString(titleStyle.Render("LAST RESOLUTION") + "\n\n")
		content.WriteString(labelStyle.Render("Facing: ") + last.Direction.String() + "\n")
		content.WriteString(labelStyle.Render("Rule: ") + last.Rule + "\n")
		content.WriteString(labelStyle.Render("Source: ") + string(last.Source) + "\n")
		content.WriteString(labelStyle.Render("Written: ") + strconv.FormatBool(last.Written) + "\n\n")
	}

	content.WriteString(titleStyle.Render("KEYS") + "\n\n")
	content.WriteString("• Arrows: Move\n")
	content.WriteString("• Shift+Arrows: Queue move\n")
	content.WriteString("• Ctrl+Y: Copy image\n")
	content.WriteString("• /help: Commands\n")
	content.WriteString("• Esc: Quit\n")

	return content.String()
}

func describeResult(res orientation.Result) string {
	if res.Source == orientation.SourceNone {
		return fmt.Sprintf("facing %s, no image configured", res.Direction)
	}
	return fmt.Sprintf("facing %s shows %s (%s rule %q)", res.Direction, res.Image, res.Source, res.Rule)
}

func formatEvent(ev events.Event) string {
	switch ev.Type {
	case events.EventTypeTokenMoved:
		return fmt.Sprintf("Moved to (%v, %v) facing %v", ev.Data["x"], ev.Data["y"], ev.Data["direction"])
	case events.EventTypeTextureUpdated:
		return fmt.Sprintf("Image set to %v by %v rule %q", ev.Data["texture_src"], ev.Data["source"], ev.Data["rule"])
	case events.EventTypeMoveQueued:
		return fmt.Sprintf("Move %s queued", ev.RequestID)
	case events.EventTypeMoveFailed:
		return fmt.Sprintf("Move %s failed: %v", ev.RequestID, ev.Data["error"])
	}
	return string(ev.Type)
}

func eventStyle(t events.EventType) lipgloss.Style {
	switch t {
	case events.EventTypeTextureUpdated:
		return imageStyle
	case events.EventTypeMoveQueued:
		return queuedStyle
	case events.EventTypeMoveFailed:
		return errorStyle
	}
	return moveStyle
}

const helpText = `Commands:
• /action <name>      Set the movement action (no name resets it)
• /hp <n>             Set the actor's HP
• /status +tag|-tag   Add or remove a status tag
• /combat on|off      Toggle encounter membership
• /goto <x> <y>       Move to a position
• /preview <dx> <dy>  Resolve a move without applying it
• /copy               Copy the current image reference
• /refresh            Reload the token and actor`

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	name, args := strings.ToLower(fields[0]), fields[1:]

	if m.token == nil && name != "/help" && name != "/refresh" {
		m.addLog(errorStyle, "Token is not loaded yet")
		m.refresh()
		return m, nil
	}

	switch name {
	case "/help":
		m.addLog(promptStyle, helpText)

	case "/action":
		return m, m.setMovementAction(strings.Join(args, " "))

	case "/hp":
		if len(args) != 1 {
			m.addLog(errorStyle, "Usage: /hp <n>")
			break
		}
		hp, err := strconv.Atoi(args[0])
		if err != nil {
			m.addLog(errorStyle, "HP must be an integer")
			break
		}
		return m, m.updateActor(map[string]any{"hp": hp})

	case "/status":
		body, err := statusPatch(args)
		if err != nil {
			m.addLog(errorStyle, err.Error())
			break
		}
		return m, m.updateActor(body)

	case "/combat":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			m.addLog(errorStyle, "Usage: /combat on|off")
			break
		}
		inCombat := args[0] == "on"
		return m, m.patch(actor.TokenPatch{InCombat: &inCombat})

	case "/goto":
		xy, err := parseFloats(args, 2)
		if err != nil {
			m.addLog(errorStyle, "Usage: /goto <x> <y>")
			break
		}
		m.busy = true
		return m, m.patch(actor.TokenPatch{X: &xy[0], Y: &xy[1]})

	case "/preview":
		d, err := parseFloats(args, 2)
		if err != nil {
			m.addLog(errorStyle, "Usage: /preview <dx> <dy>")
			break
		}
		return m, m.preview(m.token.X+d[0], m.token.Y+d[1])

	case "/copy":
		return m, m.copyTexture()

	case "/refresh":
		return m, m.loadToken()

	default:
		m.addLog(errorStyle, "Unknown command "+name+", try /help")
	}

	m.refresh()
	return m, nil
}

// statusPatch builds an actor update from "+tag" and "-tag" arguments.
func statusPatch(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, errors.New("usage: /status +tag|-tag")
	}
	var add, remove []string
	for _, a := range args {
		switch {
		case strings.HasPrefix(a, "+") && len(a) > 1:
			add = append(add, a[1:])
		case strings.HasPrefix(a, "-") && len(a) > 1:
			remove = append(remove, a[1:])
		default:
			return nil, fmt.Errorf("status tag %q needs a + or - prefix", a)
		}
	}
	body := map[string]any{}
	if len(add) > 0 {
		body["add_status"] = add
	}
	if len(remove) > 0 {
		body["remove_status"] = remove
	}
	return body, nil
}

func parseFloats(args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("want %d numbers, got %d", n, len(args))
	}
	out := make([]float64, n)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", a, err)
		}
		out[i] = v
	}
	return out, nil
}

func (m ConsoleUI) loadToken() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		tok, err := m.api.getToken(ctx, m.tokenID)
		if err != nil {
			return tokenLoadedMsg{err: err}
		}
		if !tok.HasActor() {
			return tokenLoadedMsg{token: tok}
		}
		a, err := m.api.getActor(ctx, tok.ActorID)
		return tokenLoadedMsg{token: tok, actor: a, err: err}
	}
}

func (m ConsoleUI) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.eventChan
		if !ok {
			var err error
			select {
			case err = <-m.streamErr:
			default:
			}
			return streamClosedMsg{err: err}
		}
		return eventMsg{event: ev}
	}
}

func (m ConsoleUI) move(dx, dy float64, queued bool) tea.Cmd {
	x, y := m.token.X+dx, m.token.Y+dy
	if queued {
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			id, err := m.api.queueMove(ctx, m.tokenID, x, y)
			return queuedMsg{requestID: id, err: err}
		}
	}
	return m.patch(actor.TokenPatch{X: &x, Y: &y})
}

func (m ConsoleUI) patch(p actor.TokenPatch) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := m.api.patchToken(ctx, m.tokenID, p)
		return updateMsg{res: res, err: err}
	}
}

func (m ConsoleUI) preview(x, y float64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := m.api.preview(ctx, m.tokenID, x, y)
		return previewMsg{res: res, err: err}
	}
}

func (m ConsoleUI) setMovementAction(action string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		tok, err := m.api.setMovementAction(ctx, m.tokenID, action)
		if err != nil {
			return updateMsg{err: err}
		}
		return updateMsg{res: &tokens.UpdateResult{Token: tok}}
	}
}

func (m ConsoleUI) updateActor(body map[string]any) tea.Cmd {
	actorID := m.token.ActorID
	return func() tea.Msg {
		if actorID == uuid.Nil {
			return actorMsg{err: errors.New("token has no actor")}
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		a, err := m.api.updateActor(ctx, actorID, body)
		return actorMsg{actor: a, err: err}
	}
}

func (m ConsoleUI) copyTexture() tea.Cmd {
	if m.token == nil || !m.token.TextureSrc.IsSet() {
		return func() tea.Msg { return noticeMsg{text: "No image to copy"} }
	}
	src := string(m.token.TextureSrc)
	return func() tea.Msg {
		if err := clipboard.WriteAll(src); err != nil {
			return noticeMsg{err: fmt.Errorf("failed to copy to clipboard: %w", err)}
		}
		return noticeMsg{text: "Copied " + src}
	}
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("Stop driving this token?")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	if m.showQuitModal {
		return m.renderQuitModal()
	}

	logWidth := int(float64(m.width)*0.65) - 2
	metaWidth := m.width - logWidth - 4

	logPanel := logPanelStyle.Width(logWidth).Height(m.height - 2).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.logViewport.View(),
			separatorStyle.Render(strings.Repeat("─", max(logWidth-4, 1))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, logPanel, metaPanel)
}
