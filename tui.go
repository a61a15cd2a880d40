package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"coach/analysis"
	"coach/bridge"
	"coach/clipboard"
	"coach/feedback"
	"coach/recorder"
	"coach/script"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUI message types
type SnapshotMsg recorder.Snapshot
type NoticeMsg struct {
	Text string
	Warn bool
}
type ScriptLoadedMsg struct {
	Text string
	OK   bool
}
type VoicesMsg struct {
	Voices []feedback.VoiceOption
	Err    error
}
type tickMsg time.Time

const (
	controlTimeout = 15 * time.Second
	statusWidth    = 36
)

type tuiDeps struct {
	script   *script.Store
	feedback *feedback.Store
	ctrl     *recorder.Controller
	client   *analysis.Client
	exporter bridge.Exporter
	modeLine string // "[blob | wav | http://localhost:8080]"
	device   string
}

type tuiModel struct {
	deps          *tuiDeps
	snap          recorder.Snapshot
	width, height int
	frame         int
	notice        string
	noticeWarn    bool
	analyses      int // completed analyses this run
	voices        []feedback.VoiceOption
	showVoices    bool
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

var (
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Bold(true)
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	partialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	bandStyles = map[feedback.Band]lipgloss.Style{
		feedback.BandGood: lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("42")).Bold(true).Padding(0, 1),
		feedback.BandFair: lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("220")).Bold(true).Padding(0, 1),
		feedback.BandPoor: lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("160")).Bold(true).Padding(0, 1),
	}
)

func NewTUIProgram(deps *tuiDeps) *tea.Program {
	m := tuiModel{deps: deps, snap: deps.ctrl.Snapshot()}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case SnapshotMsg:
		s := recorder.Snapshot(msg)
		if s.State == recorder.Complete && (m.snap.State != recorder.Complete || m.snap.SessionID != s.SessionID) {
			m.analyses++
		}
		if s.State == recorder.Recording && m.snap.State != recorder.Recording {
			m.notice = ""
		}
		m.snap = s

	case NoticeMsg:
		m.notice = msg.Text
		m.noticeWarn = msg.Warn

	case ScriptLoadedMsg:
		if !msg.OK {
			m.notice, m.noticeWarn = "No script was loaded.", true
			break
		}
		if err := m.deps.script.SetText(msg.Text); err != nil {
			m.notice, m.noticeWarn = "Unlock the script before loading a file.", true
			break
		}
		m.notice, m.noticeWarn = "Script loaded.", false

	case VoicesMsg:
		if msg.Err != nil {
			m.notice, m.noticeWarn = analysis.UserMessage(msg.Err), true
			break
		}
		m.voices = msg.Voices
		m.showVoices = true
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "ctrl+l":
		if m.deps.script.Locked() {
			m.deps.script.Unlock()
			return m, nil
		}
		if err := m.deps.script.Lock(); err != nil {
			m.notice, m.noticeWarn = "Please enter your script before locking.", true
		}
		return m, nil

	case "ctrl+r":
		if m.snap.State == recorder.Recording {
			return m, stopCmd(m.deps.ctrl)
		}
		return m, startCmd(m.deps.ctrl)

	case "ctrl+o":
		if m.deps.script.Locked() {
			m.notice, m.noticeWarn = "Unlock the script before loading a file.", true
			return m, nil
		}
		ex := m.deps.exporter
		return m, func() tea.Msg {
			text, ok := ex.OpenTextFile(context.Background())
			return ScriptLoadedMsg{Text: text, OK: ok}
		}

	case "ctrl+s":
		r, ok := m.deps.feedback.Result()
		if !ok {
			return m, nil
		}
		ex := m.deps.exporter
		return m, func() tea.Msg {
			if ex.SaveFeedback(context.Background(), feedback.FormatExport(r)) {
				return NoticeMsg{Text: "Feedback saved."}
			}
			return NoticeMsg{Text: "Feedback was not saved.", Warn: true}
		}

	case "ctrl+a":
		r, ok := m.deps.feedback.Result()
		if !ok || r.AudioURL == "" {
			return m, nil
		}
		ex := m.deps.exporter
		return m, func() tea.Msg {
			if ex.SaveAudio(context.Background(), r.AudioURL) {
				return NoticeMsg{Text: "Ideal delivery audio saved."}
			}
			return NoticeMsg{Text: "Audio was not saved.", Warn: true}
		}

	case "ctrl+y":
		r, ok := m.deps.feedback.Result()
		if !ok {
			return m, nil
		}
		if err := clipboard.Copy(feedback.FormatExport(r)); err != nil {
			m.notice, m.noticeWarn = err.Error(), true
			return m, nil
		}
		m.notice, m.noticeWarn = "Feedback copied.", false
		return m, nil

	case "ctrl+t":
		if m.showVoices {
			m.showVoices = false
			return m, nil
		}
		client := m.deps.client
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
			defer cancel()
			voices, err := client.Voices(ctx)
			return VoicesMsg{Voices: voices, Err: err}
		}
	}

	if m.deps.script.Locked() {
		return m, nil
	}
	text := m.deps.script.Text()
	switch msg.Type {
	case tea.KeyRunes:
		text += string(msg.Runes)
	case tea.KeySpace:
		text += " "
	case tea.KeyEnter:
		text += "\n"
	case tea.KeyBackspace:
		text = dropLastRune(text)
	default:
		return m, nil
	}
	m.deps.script.SetText(text)
	return m, nil
}

// Start and Stop wait on the controller goroutine, whose observers call
// p.Send, so both run as commands and never inside Update.
func startCmd(ctrl *recorder.Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
		defer cancel()
		if err := ctrl.Start(ctx); err != nil {
			return NoticeMsg{Text: startMessage(err), Warn: true}
		}
		return nil
	}
}

func stopCmd(ctrl *recorder.Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
		defer cancel()
		if err := ctrl.Stop(ctx); err != nil {
			return NoticeMsg{Text: stopMessage(err), Warn: true}
		}
		return nil
	}
}

func startMessage(err error) string {
	var unavailable *recorder.CaptureUnavailableError
	switch {
	case errors.Is(err, analysis.ErrRequestInFlight):
		return "Analysis in progress, please wait."
	case errors.Is(err, recorder.ErrSessionActive):
		return "A recording is already in progress."
	case errors.Is(err, recorder.ErrNotLocked):
		return "Lock your script before recording."
	case errors.As(err, &unavailable):
		return "Microphone unavailable: " + unavailable.Err.Error()
	}
	return "Could not start recording: " + err.Error()
}

func stopMessage(err error) string {
	switch {
	case errors.Is(err, recorder.ErrNotRecording):
		return "Not recording."
	case errors.Is(err, recorder.ErrNoAudio):
		return "No audio was captured. Record again."
	case errors.Is(err, recorder.ErrNoSpeech):
		return "No speech was recognized. Record again."
	}
	return "Recording failed: " + err.Error()
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	status := m.renderStatus()

	mainWidth := m.width - statusWidth - 1
	if mainWidth < 20 {
		mainWidth = 20
	}
	wrapWidth := mainWidth - 2
	if wrapWidth < 10 {
		wrapWidth = 10
	}

	var b strings.Builder
	m.renderScript(&b, wrapWidth)
	m.renderTranscript(&b, wrapWidth)
	m.renderFeedback(&b, wrapWidth)
	if m.showVoices {
		m.renderVoices(&b, wrapWidth)
	}
	if m.notice != "" {
		style := okStyle
		if m.noticeWarn {
			style = warnStyle
		}
		b.WriteString("\n" + style.Render(m.notice) + "\n")
	}

	statusPanel := lipgloss.NewStyle().
		Width(statusWidth).
		Height(m.height).
		Render(status)
	mainPanel := lipgloss.NewStyle().
		Width(mainWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(b.String())

	return lipgloss.JoinHorizontal(lipgloss.Top, statusPanel, mainPanel)
}

func (m tuiModel) renderStatus() string {
	var lines []string

	switch {
	case m.snap.Acquiring:
		lines = append(lines, warnStyle.Render("◌ OPENING MICROPHONE"))
	case m.snap.State == recorder.Recording:
		dot := "●"
		if m.frame%10 >= 5 {
			dot = " "
		}
		lines = append(lines, lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true).
			Render(fmt.Sprintf("%s REC %.1fs", dot, m.snap.Duration().Seconds())))
	case m.snap.Analyzing || m.snap.State == recorder.Submitting:
		spinner := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		lines = append(lines, lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Render(spinner[m.frame%len(spinner)]+" ANALYZING"))
	case m.snap.State == recorder.Complete:
		lines = append(lines, okStyle.Render("✓ COMPLETE"))
	case m.snap.State == recorder.Error:
		lines = append(lines, warnStyle.Render("✗ ERROR"))
	default:
		lines = append(lines, dimStyle.Render("○ STANDBY"))
	}

	lock := "unlocked (editing)"
	if m.deps.script.Locked() {
		lock = "locked"
	}
	lines = append(lines, dimStyle.Render("script: "+lock))
	if m.deps.modeLine != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render(m.deps.modeLine))
	}
	if m.deps.device != "" {
		lines = append(lines, dimStyle.Render(m.deps.device))
	}
	if m.snap.Chunks > 0 {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("%d chunks", m.snap.Chunks)))
	}
	if m.analyses > 0 {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("%d analyses", m.analyses)))
	}

	lines = append(lines, "")
	for _, h := range [][2]string{
		{"Ctrl+L", " lock/unlock"},
		{"Ctrl+R", " record/stop"},
		{"Ctrl+O", " open script"},
		{"Ctrl+S", " save feedback"},
		{"Ctrl+A", " save audio"},
		{"Ctrl+Y", " copy feedback"},
		{"Ctrl+T", " voices"},
		{"Ctrl+C", " quit"},
	} {
		lines = append(lines, helpKeyStyle.Render(h[0])+helpStyle.Render(h[1]))
	}
	lines = append(lines, helpStyle.Render("coach "+version))
	return strings.Join(lines, "\n")
}

func (m tuiModel) renderScript(b *strings.Builder, width int) {
	b.WriteString(titleStyle.Render("Script") + "\n\n")
	text := m.deps.script.Text()
	if text == "" && m.deps.script.Locked() {
		return
	}
	if text == "" {
		b.WriteString(dimStyle.Render("Type or open your script, then lock it with Ctrl+L.") + "\n\n")
		return
	}
	if !m.deps.script.Locked() {
		text += "█"
	}
	for _, line := range wrapText(text, width) {
		b.WriteString(textStyle.Render(line) + "\n")
	}
	b.WriteString("\n")
}

func (m tuiModel) renderTranscript(b *strings.Builder, width int) {
	if m.snap.Transcript == "" && m.snap.Partial == "" {
		return
	}
	b.WriteString(titleStyle.Render("What you said") + "\n\n")
	for _, line := range wrapText(m.snap.Transcript, width) {
		b.WriteString(textStyle.Render(line) + "\n")
	}
	if m.snap.Partial != "" {
		for _, line := range wrapText(m.snap.Partial, width) {
			b.WriteString(partialStyle.Render(line) + "\n")
		}
	}
	b.WriteString("\n")
}

func (m tuiModel) renderFeedback(b *strings.Builder, width int) {
	if m.snap.State == recorder.Error && m.snap.Err != nil {
		b.WriteString(warnStyle.Render("Recording failed: "+m.snap.Err.Error()) + "\n\n")
	}
	if msg, ok := m.deps.feedback.Error(); ok {
		b.WriteString(titleStyle.Render("Feedback") + "\n\n")
		for _, line := range wrapText(msg, width) {
			b.WriteString(warnStyle.Render(line) + "\n")
		}
		b.WriteString("\n")
		return
	}
	r, ok := m.deps.feedback.Result()
	if !ok {
		return
	}

	badge := bandStyles[feedback.ScoreBand(r.Score)].Render(feedback.ScoreBadge(r.Score))
	b.WriteString(titleStyle.Render("Feedback") + "  " + badge + "\n\n")
	section := func(title, body string) {
		if body == "" {
			return
		}
		b.WriteString(dimStyle.Render(title) + "\n")
		for _, line := range wrapText(body, width) {
			b.WriteString(textStyle.Render(line) + "\n")
		}
		b.WriteString("\n")
	}
	section("What went well", r.PositiveFeedback)
	section("Areas for improvement", r.ImprovementPoints)

	if vr := r.VoiceRecommendation; vr != nil {
		b.WriteString(dimStyle.Render("Recommended voice") + "\n")
		b.WriteString(textStyle.Render(fmt.Sprintf("%s (%s, %s), %s tone, %.0f%% confidence",
			vr.VoiceOption.Name, vr.VoiceOption.Gender, vr.VoiceOption.Accent,
			vr.RecommendedTone, vr.ConfidenceScore*100)) + "\n")
		for _, line := range wrapText(vr.RecommendationReason, width) {
			if line != "" {
				b.WriteString(partialStyle.Render(line) + "\n")
			}
		}
		b.WriteString("\n")
	}
	if r.AudioURL != "" {
		b.WriteString(dimStyle.Render("Ideal delivery: "+r.AudioURL) + "\n")
	}
}

func (m tuiModel) renderVoices(b *strings.Builder, width int) {
	b.WriteString("\n" + titleStyle.Render(fmt.Sprintf("Voices (%d)", len(m.voices))) + "\n\n")
	tone := ""
	if r, ok := m.deps.feedback.Result(); ok && r.VoiceRecommendation != nil {
		tone = r.VoiceRecommendation.RecommendedTone
	}
	for _, v := range m.voices {
		line := fmt.Sprintf("%s  %s, %s  [%s]", v.Name, v.Gender, v.Accent, strings.Join(v.SupportedTones, ", "))
		style := textStyle
		if tone != "" && v.SupportsTone(tone) {
			style = okStyle
		}
		for _, l := range wrapText(line, width) {
			b.WriteString(style.Render(l) + "\n")
		}
	}
}

func dropLastRune(s string) string {
	if s == "" {
		return s
	}
	_, size := utf8.DecodeLastRuneInString(s)
	return s[:len(s)-size]
}

// wrapText breaks text at spaces so no line exceeds width runes. Newlines in
// the input are kept.
func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		runes := []rune(para)
		for len(runes) > width {
			// Find last space within width
			splitAt := width
			for i := width; i > 0; i-- {
				if runes[i] == ' ' {
					splitAt = i
					break
				}
			}
			lines = append(lines, string(runes[:splitAt]))
			runes = []rune(strings.TrimLeft(string(runes[splitAt:]), " "))
		}
		lines = append(lines, string(runes))
	}
	return lines
}
