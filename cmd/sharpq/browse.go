package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianStats/pkg/ux"
	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
)

// browseState selects which pane has focus.
type browseState int

const (
	browseStateTable browseState = iota
	browseStateDetail
)

var (
	browseTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ux.ColorTealPrimary).
				Padding(0, 1)
	browseHelpStyle = lipgloss.NewStyle().Foreground(ux.ColorSlate)
	browseErrStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

// runDetailMsg carries a fetched run into the model.
type runDetailMsg struct {
	rec *store.RunRecord
}

// browseErrMsg carries a fetch failure into the model.
type browseErrMsg struct {
	err error
}

// fetchRunDetail loads one run off the UI goroutine.
func fetchRunDetail(id string) tea.Cmd {
	return func() tea.Msg {
		var rec store.RunRecord
		if err := apiGet("/v1/runs/"+id, &rec); err != nil {
			return browseErrMsg{err: err}
		}
		return runDetailMsg{rec: &rec}
	}
}

// browseModel is the interactive runs browser: a summary table, with a
// scrollable detail pane for the selected run.
type browseModel struct {
	state    browseState
	table    table.Model
	viewport viewport.Model
	runs     []store.RunSummary
	loading  bool
	status   string
}

func newBrowseModel(runs []store.RunSummary) browseModel {
	columns := []table.Column{
		{Title: "ID", Width: 36},
		{Title: "Label", Width: 18},
		{Title: "Source", Width: 8},
		{Title: "m", Width: 7},
		{Title: "q<=0.05", Width: 8},
		{Title: "Min q", Width: 9},
		{Title: "Created", Width: 16},
	}

	rows := make([]table.Row, 0, len(runs))
	for _, r := range runs {
		label := r.Label
		if label == "" {
			label = "-"
		}
		rows = append(rows, table.Row{
			r.ID,
			label,
			r.Source,
			strconv.Itoa(r.Hypotheses),
			strconv.Itoa(r.Discoveries05),
			fmt.Sprintf("%.3g", r.MinQ),
			r.CreatedAt.Format("2006-01-02 15:04"),
		})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		Bold(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(ux.ColorTealDeep)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#ECFDF5")).
		Background(ux.ColorTealVibrant).
		Bold(false)
	t.SetStyles(s)

	return browseModel{
		table:    t,
		viewport: viewport.New(80, 20),
		runs:     runs,
	}
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			if m.state == browseStateDetail {
				m.state = browseStateTable
				return m, nil
			}
			return m, tea.Quit
		case tea.KeyEnter:
			if m.state == browseStateTable && !m.loading {
				idx := m.table.Cursor()
				if idx >= 0 && idx < len(m.runs) {
					m.loading = true
					m.status = ""
					return m, fetchRunDetail(m.runs[idx].ID)
				}
			}
			return m, nil
		}
		if msg.String() == "q" {
			if m.state == browseStateDetail {
				m.state = browseStateTable
				return m, nil
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 4)
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 4
		return m, nil

	case runDetailMsg:
		m.loading = false
		m.viewport.SetContent(renderRunDetail(msg.rec))
		m.viewport.GotoTop()
		m.state = browseStateDetail
		return m, nil

	case browseErrMsg:
		m.loading = false
		m.status = msg.err.Error()
		return m, nil
	}

	var cmd tea.Cmd
	if m.state == browseStateDetail {
		m.viewport, cmd = m.viewport.Update(msg)
	} else {
		m.table, cmd = m.table.Update(msg)
	}
	return m, cmd
}

func (m browseModel) View() string {
	var b strings.Builder
	b.WriteString(browseTitleStyle.Render("Stored sharpening runs") + "\n")

	if m.state == browseStateDetail {
		b.WriteString(m.viewport.View() + "\n")
		b.WriteString(browseHelpStyle.Render("esc/q back, ctrl+c quit"))
		return b.String()
	}

	b.WriteString(m.table.View() + "\n")
	if m.status != "" {
		b.WriteString(browseErrStyle.Render(m.status) + "\n")
	}
	help := "enter details, up/down move, q quit"
	if m.loading {
		help = "loading run..."
	}
	b.WriteString(browseHelpStyle.Render(help))
	return b.String()
}

// renderRunDetail formats one run for the scrollable detail pane.
func renderRunDetail(rec *store.RunRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run:        %s\n", rec.ID)
	if rec.Label != "" {
		fmt.Fprintf(&b, "Label:      %s\n", rec.Label)
	}
	fmt.Fprintf(&b, "Source:     %s\n", rec.Source)
	fmt.Fprintf(&b, "Created:    %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Step:       %g\n", rec.Step)
	fmt.Fprintf(&b, "Hypotheses: %d\n", rec.Hypotheses)
	fmt.Fprintf(&b, "Discoveries at q <= 0.05: %d\n", countDiscoveries(rec.QValues, 0.05))

	b.WriteString("\np_value      q_value\n")
	b.WriteString("---------    ---------\n")
	for i := range rec.PValues {
		fmt.Fprintf(&b, "%-10.4g   %-10.4g\n", rec.PValues[i], rec.QValues[i])
	}
	return b.String()
}

// runRunsBrowse fetches the summaries and hands them to bubbletea.
func runRunsBrowse(cmd *cobra.Command, args []string) {
	var result runsListResponse
	if err := apiGet("/v1/runs", &result); err != nil {
		log.Fatalf("Failed to list runs: %v", err)
	}
	if len(result.Runs) == 0 {
		fmt.Println("No stored runs to browse.")
		return
	}

	p := tea.NewProgram(newBrowseModel(result.Runs), tea.WithOutput(os.Stderr), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Browse failed: %v\n", err)
		os.Exit(1)
	}
}
