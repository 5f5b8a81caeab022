package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	headerStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109"))
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	canvasBoxStyle     = lipgloss.NewStyle().MarginTop(1)
	noticeBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("95")).Padding(0, 1).MarginTop(1)
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	hintStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
)

func (model *TUIModel) View() string {
	if model.quitting {
		return ""
	}
	sections := []string{
		model.renderHeader(),
		canvasBoxStyle.Render(model.renderer.Frame()),
		model.renderPeers(),
	}
	if len(model.notices) > 0 {
		lines := make([]string, 0, len(model.notices))
		for _, notice := range model.notices {
			lines = append(lines, systemMessageStyle.Render(notice))
		}
		sections = append(sections, noticeBoxStyle.Render(strings.Join(lines, "\n")))
	}
	sections = append(sections,
		inputBoxStyle.Render(model.textInput.View()),
		hintStyle.Render(commandHelp),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *TUIModel) renderHeader() string {
	title := appTitleStyle.Render("GhostCanvas")
	var status string
	switch {
	case model.isConnected:
		status = connectedStyle.Render("● connected")
	case model.lastError != nil:
		status = errorStyle.Render(fmt.Sprintf("● offline: %v", model.lastError))
	default:
		status = connectingStyle.Render("● connecting…")
	}
	who := usernameStyle.Foreground(ghostColor(model.color)).Render(model.nickname)
	return headerStyle.Render(title + dividerStyle + status + dividerStyle + who)
}

func (model *TUIModel) renderPeers() string {
	peers := model.sync.Peers()
	if len(peers) == 0 {
		return statusStyle.Render("nobody else is here yet")
	}
	names := make([]string, 0, len(peers))
	for _, peer := range peers {
		names = append(names, usernameStyle.Foreground(ghostColor(peer.Color)).Render(peer.Nickname))
	}
	return statusStyle.Render("here: ") + strings.Join(names, ", ")
}
