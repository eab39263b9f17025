package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"gitnext/internal/model"
	"gitnext/internal/protocol"
)

// ── styles ─────────────────────────────────────────────────────────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginLeft(2)

	dimStyle     = lipgloss.NewStyle().Faint(true)
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	newStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	updatedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	helpStyle = lipgloss.NewStyle().
			Faint(true).
			PaddingLeft(2)

	detailHeadStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	labelStyle = lipgloss.NewStyle().Faint(true)
)

var phaseText = map[protocol.Type]string{
	protocol.LoadingConfig:            "Loading config",
	protocol.CreatedDefaultConfig:     "Created default config",
	protocol.LoadedConfig:             "Loaded config",
	protocol.VerifyingUser:            "Verifying user",
	protocol.VerifiedUser:             "Verified user",
	protocol.GettingToken:             "Getting token",
	protocol.GotToken:                 "Got token",
	protocol.LoadingStoredData:        "Loading stored data",
	protocol.LoadedStoredData:         "Loaded stored data",
	protocol.LoadingUserData:          "Loading user pull requests",
	protocol.LoadedUserData:           "Loaded user pull requests",
	protocol.LoadingOrgData:           "Loading organization pull requests",
	protocol.LoadedOrgData:            "Loaded organization pull requests",
	protocol.PrioritizingPullRequests: "Prioritizing",
	protocol.PrioritizedPullRequests:  "Prioritized",
	protocol.StoringData:              "Storing data",
}

func badge(p model.Priority) string {
	switch {
	case p >= model.RejectedOwn:
		return errStyle.Render("●")
	case p >= model.ApprovedOwn:
		return warnStyle.Render("●")
	case p > model.NoActionNeeded:
		return okStyle.Render("●")
	default:
		return dimStyle.Render("○")
	}
}

func (m Model) View() string {
	if m.width == 0 {
		return ""
	}

	if m.err != "" {
		return lipgloss.NewStyle().Padding(1, 2).Render(
			errStyle.Render("Error") + "\n\n" + m.err + "\n\n" +
				dimStyle.Render("Press r to reload, q to quit."),
		)
	}

	if m.loading && len(m.prs) == 0 {
		return lipgloss.NewStyle().Padding(1, 2).Render(m.loader())
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.list.View(), m.renderDetail())
	return lipgloss.JoinVertical(lipgloss.Left, body, m.renderHelp())
}

func (m Model) loader() string {
	text, ok := phaseText[m.phase]
	if !ok {
		text = "Connecting"
	}
	return spinnerFrames[m.spinnerFrame] + " " + text + "…"
}

// ── layout helpers ─────────────────────────────────────────────────────────

func (m Model) listDimensions() (width, height int) {
	return m.width / 3, m.height - 2
}

func (m Model) renderDetail() string {
	lw, _ := m.listDimensions()
	dw := m.width - lw
	dh := m.height - 2

	style := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		PaddingLeft(3).
		PaddingRight(2).
		Width(dw - 1).
		Height(dh)

	contentWidth := max((dw-1)-3-2, 1)

	pr := m.selected()
	if pr == nil {
		return style.Render(dimStyle.Render("Nothing needs your attention"))
	}

	row := func(lbl, val string) string {
		return labelStyle.Render(lbl) + val + "\n"
	}

	sep := dimStyle.Render(strings.Repeat("─", contentWidth))

	var b strings.Builder
	b.WriteString(detailHeadStyle.Render(truncate(pr.Title, contentWidth)) + "\n\n")
	b.WriteString(row("Repo     ", pr.BaseRepository.FullName()))
	if pr.BaseRepository.Team != "" {
		b.WriteString(row("Team     ", pr.BaseRepository.Team))
	}
	b.WriteString(row("Author   ", pr.Author))
	b.WriteString(row("Branch   ", pr.From+" → "+pr.To))
	b.WriteString(row("Updated  ", humanize.RelTime(pr.UpdatedAt, m.now(), "ago", "from now")))
	b.WriteString(row("Status   ", badge(pr.Priority)+" "+pr.Priority.String()))
	if n := len(pr.Blocking); n > 0 {
		b.WriteString(row("Blocking ", warnStyle.Render(fmt.Sprintf("%d waiting", n))))
	}
	b.WriteString(row("URL      ", dimStyle.Render(pr.URL)))
	b.WriteString("\n")
	b.WriteString(pr.Priority.FollowUp() + "\n\n")
	b.WriteString(sep + "\n\n")

	body := strings.TrimSpace(pr.Body)
	if body == "" {
		b.WriteString(dimStyle.Render("No description") + "\n")
	} else {
		b.WriteString(lipgloss.NewStyle().Width(contentWidth).Render(body) + "\n")
	}

	return style.Render(b.String())
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 1 || len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

func (m Model) renderHelp() string {
	var parts []string
	for _, k := range m.keys.help() {
		h := k.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	text := "↑/↓ navigate   " + strings.Join(parts, "   ")
	switch {
	case m.status != "":
		text += "   " + okStyle.Render(m.status)
	case m.loading:
		text += "   " + m.loader()
	}
	sep := dimStyle.Render(strings.Repeat("─", m.width))
	return sep + "\n" + helpStyle.Render(text)
}
