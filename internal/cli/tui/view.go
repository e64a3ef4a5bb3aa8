package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/haskel/bore/internal/server"
	"github.com/haskel/bore/internal/space"
)

// maxVisible is the number of observation rows shown at once.
const maxVisible = 8

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var sections []string

	sections = append(sections, m.renderTitleBar())

	if m.err != nil {
		sections = append(sections, errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	if m.record != nil {
		sections = append(sections, m.renderSummary())

		if len(m.record.Rungs) > 0 {
			sections = append(sections, m.renderRungs())
		}

		if m.record.Best != nil {
			sections = append(sections, m.renderIncumbent())
		}

		if len(m.record.Observations) > 0 {
			sections = append(sections, m.renderObservations())
		}
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderTitleBar() string {
	title := titleStyle.Render("BORE DASHBOARD")

	refreshInfo := fmt.Sprintf("↻ %s", m.config.RefreshInterval)
	if m.loading {
		refreshInfo = "↻ loading..."
	}

	rightPart := fmt.Sprintf("%s | %s", refreshInfo, "q:quit r:refresh ↑↓:scroll")
	spacing := max(m.width-lipgloss.Width(title)-lipgloss.Width(rightPart)-2, 1)

	return fmt.Sprintf("%s%s%s", title, strings.Repeat(" ", spacing), helpStyle.Render(rightPart))
}

func (m Model) renderSummary() string {
	failed := 0
	for _, o := range m.record.Observations {
		if o.Loss == nil {
			failed++
		}
	}

	best := "-"
	if m.record.Best != nil {
		best = formatLoss(m.record.Best.Loss)
	}

	return fmt.Sprintf("  %s %s    %s %s    %s %s    %s %s",
		labelStyle.Render("Kind"), valueStyle.Render(m.record.Kind),
		labelStyle.Render("Observations"), valueStyle.Render(fmt.Sprintf("%d (%d failed)", m.record.Size, failed)),
		labelStyle.Render("Pending"), valueStyle.Render(fmt.Sprintf("%d", len(m.pending))),
		labelStyle.Render("Best"), bestStyle.Render(best),
	)
}

func (m Model) renderProgressBar(label string, size, width int) string {
	largest := 1
	for _, r := range m.record.Rungs {
		largest = max(largest, r.Size)
	}

	filled := min(max(size*width/largest, 0), width)

	color := getFillColor(size, m.config.MinRungSize)
	filledBar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled))
	emptyBar := progressBarEmptyStyle.Render(strings.Repeat("░", width-filled))

	return fmt.Sprintf("%s [%s%s] %4d", labelStyle.Render(label), filledBar, emptyBar, size)
}

func (m Model) renderRungs() string {
	var lines []string
	lines = append(lines, sectionHeaderStyle.Render("  Rungs"))

	header := fmt.Sprintf("  %-30s │ %10s │ %10s │ %10s",
		"Budget", "Threshold", "Mean", "Best")
	lines = append(lines, tableHeaderStyle.Render(header))

	for _, r := range m.record.Rungs {
		bar := m.renderProgressBar(fmt.Sprintf("%8g", r.Budget), r.Size, 12)
		pad := max(30-lipgloss.Width(bar), 0)
		row := fmt.Sprintf("  %s%s │ %10s │ %10s │ %10s",
			bar, strings.Repeat(" ", pad),
			formatLoss(r.Threshold), formatLoss(r.MeanLoss), formatLoss(r.BestLoss))
		lines = append(lines, row)
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderIncumbent() string {
	best := m.record.Best
	var lines []string
	lines = append(lines, sectionHeaderStyle.Render(fmt.Sprintf("  Incumbent (budget %g)", best.Budget)))
	for _, name := range space.SortedKeys(best.Config) {
		lines = append(lines, fmt.Sprintf("    %s = %s",
			labelStyle.Render(name), valueStyle.Render(fmt.Sprint(best.Config[name]))))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderObservations() string {
	var lines []string
	lines = append(lines, sectionHeaderStyle.Render("  Observations (newest first)"))

	header := fmt.Sprintf("  %5s │ %8s │ %12s │ %s", "#", "Budget", "Loss", "Config")
	lines = append(lines, tableHeaderStyle.Render(header))

	obs := m.record.Observations
	start := min(m.tableOffset, max(len(obs)-1, 0))
	end := min(start+maxVisible, len(obs))

	for i := start; i < end; i++ {
		idx := len(obs) - 1 - i
		o := obs[idx]

		row := fmt.Sprintf("  %5d │ %8g │ %12s │ %s",
			idx+1, o.Budget, formatLoss(o.Loss), truncate(formatConfig(o.Config), max(m.width-38, 20)))

		style := tableCellStyle
		switch {
		case o.Loss == nil:
			style = failedStyle
		case isBest(o, m.record.Best):
			style = bestStyle
		}
		lines = append(lines, style.Render(row))
	}

	if len(obs) > maxVisible {
		scrollInfo := fmt.Sprintf("  [%d-%d of %d observations]", start+1, end, len(obs))
		lines = append(lines, helpStyle.Render(scrollInfo))
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	if m.record == nil {
		return ""
	}

	return helpStyle.Render(fmt.Sprintf(
		"  Server: %s │ Updated: %s",
		m.config.ServerURL,
		m.lastUpdated.Format("15:04:05"),
	))
}

func isBest(o server.ObservationView, best *server.ObservationView) bool {
	return best != nil && o.Loss != nil && best.Loss != nil &&
		*o.Loss == *best.Loss && o.Budget == best.Budget
}

func formatLoss(v *float64) string {
	if v == nil {
		return "-"
	}
	if math.Abs(*v) >= 1e4 || (*v != 0 && math.Abs(*v) < 1e-3) {
		return fmt.Sprintf("%.3e", *v)
	}
	return fmt.Sprintf("%.4f", *v)
}

func formatConfig(cfg space.Config) string {
	parts := make([]string, 0, len(cfg))
	for _, name := range space.SortedKeys(cfg) {
		v := cfg[name]
		if f, ok := v.(float64); ok {
			parts = append(parts, fmt.Sprintf("%s=%.4g", name, f))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", name, v))
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
