// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/dctransfer/pool"
	"github.com/bureau-foundation/dctransfer/rtt"
	"github.com/bureau-foundation/dctransfer/session"
	"github.com/bureau-foundation/dctransfer/transfer"
)

// Messages delivered from the session loop into the view.
type (
	statusMsg      string
	startedMsg     session.TransferInfo
	progressMsg    transfer.Progress
	windowMsg      struct{ window *rtt.Window }
	connectionsMsg int
	summaryMsg     string
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	summaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// viewModel is the bubbletea model of the progress view.
type viewModel struct {
	bar         progress.Model
	title       string
	progress    transfer.Progress
	window      string
	connections int
	status      string
	logLine     string
	logLevel    slog.Level
	summary     string
}

func newViewModel() viewModel {
	return viewModel{
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(60)),
		title:  "waiting for a transfer",
		window: "-",
	}
}

func (m viewModel) Init() tea.Cmd { return nil }

func (m viewModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch message.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(message.Width-4, 80))
	case statusMsg:
		m.status = string(message)
	case startedMsg:
		m.title = describeTransfer(session.TransferInfo(message))
		m.progress = transfer.Progress{}
		m.window = "-"
		m.summary = ""
	case progressMsg:
		m.progress = transfer.Progress(message)
	case windowMsg:
		m.window = formatWindow(message.window)
	case connectionsMsg:
		m.connections += int(message)
	case summaryMsg:
		if m.summary != "" {
			m.summary += "\n"
		}
		m.summary += string(message)
	case logLineMsg:
		m.logLine = message.Line
		m.logLevel = message.Level
	}
	return m, nil
}

func (m viewModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	var fraction float64
	if m.progress.Total > 0 {
		fraction = float64(m.progress.Bytes) / float64(m.progress.Total)
	}
	b.WriteString(m.bar.ViewAs(fraction))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("progress   "), formatProgress(m.progress))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("rtt        "), m.window)
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("connections"), m.connections)
	if m.status != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("status     "), m.status)
	}
	if m.summary != "" {
		b.WriteString("\n")
		b.WriteString(summaryStyle.Render(m.summary))
		b.WriteString("\n")
	}
	if m.logLine != "" {
		style := labelStyle
		switch {
		case m.logLevel >= slog.LevelError:
			style = errorStyle
		case m.logLevel >= slog.LevelWarn:
			style = warnStyle
		}
		b.WriteString("\n")
		b.WriteString(style.Render(m.logLine))
		b.WriteString("\n")
	}
	b.WriteString(labelStyle.Render("\nq to quit"))
	b.WriteString("\n")
	return b.String()
}

// progressView runs the model in a bubbletea program. Events and log
// records that arrive before Run has created the program are dropped.
type progressView struct {
	logs *viewLogHandler
	send atomic.Pointer[func(any)]
}

func newProgressView(logs *viewLogHandler) *progressView {
	return &progressView{logs: logs}
}

// Run shows the view until the user quits or ctx is cancelled.
func (v *progressView) Run(ctx context.Context) error {
	program := tea.NewProgram(newViewModel(), tea.WithContext(ctx))
	send := func(message any) { program.Send(message) }
	v.send.Store(&send)
	v.logs.attach(send)
	defer v.send.Store(nil)

	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func (v *progressView) deliver(message any) {
	if send := v.send.Load(); send != nil {
		(*send)(message)
	}
}

func (v *progressView) observer() session.Observer {
	return viewObserver{deliver: v.deliver}
}

// viewObserver turns session events into view messages.
type viewObserver struct {
	deliver func(any)
}

func (o viewObserver) Status(message string) { o.deliver(statusMsg(message)) }

func (o viewObserver) TransferStarted(info session.TransferInfo) { o.deliver(startedMsg(info)) }

func (o viewObserver) ConnectionOpened(string, pool.Role) { o.deliver(connectionsMsg(1)) }

func (o viewObserver) ConnectionClosed(string, pool.Role) { o.deliver(connectionsMsg(-1)) }

func (o viewObserver) SendProgress(p transfer.Progress) { o.deliver(progressMsg(p)) }

func (o viewObserver) ReceiveProgress(p transfer.Progress) { o.deliver(progressMsg(p)) }

func (o viewObserver) WindowMetrics(window *rtt.Window) { o.deliver(windowMsg{window: window}) }

func (o viewObserver) FinalStats(stats rtt.FinalStats) { o.deliver(summaryMsg(formatFinalStats(stats))) }

func (o viewObserver) SendComplete(summary transfer.SendSummary) {
	o.deliver(summaryMsg(formatSendSummary(summary)))
}

func (o viewObserver) SendAborted(reason error) {
	o.deliver(summaryMsg("send aborted: " + reason.Error()))
}

func (o viewObserver) ReceiveComplete(summary transfer.ReceiveSummary) {
	o.deliver(summaryMsg(formatReceiveSummary(summary)))
}
