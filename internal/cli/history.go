package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/haskel/bore/internal/logger"
	"github.com/haskel/bore/internal/space"
	"github.com/haskel/bore/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show evaluated configurations",
	Long: `List evaluated configurations, best first. By default the history is
read from the configured persistence backend; --remote reads the record of a
running server instead.

Examples:
  bore history -c bore.yaml --limit 10
  bore history --remote --json`,
	RunE: runHistory,
}

var (
	historyRemote bool
	historyLimit  int
	historyBudget float64
)

var (
	historyHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	historyFailedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	historyMutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func init() {
	historyCmd.Flags().BoolVar(&historyRemote, "remote", false, "read the record of a running server")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum rows to show (0 for all)")
	historyCmd.Flags().Float64VarP(&historyBudget, "budget", "b", 0, "only show evaluations at this budget")
	rootCmd.AddCommand(historyCmd)
}

// HistoryRow is one evaluation in the history listing.
type HistoryRow struct {
	Config space.Config `json:"config"`
	Budget float64      `json:"budget"`
	Loss   *float64     `json:"loss"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	var (
		rows []HistoryRow
		err  error
	)
	if historyRemote {
		rows, err = remoteHistory()
	} else {
		rows, err = localHistory(cmd.Context())
	}
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("budget") {
		rows = filterBudget(rows, historyBudget)
	}
	sortRows(rows)
	total := len(rows)
	if historyLimit > 0 && len(rows) > historyLimit {
		rows = rows[:historyLimit]
	}

	if jsonOut {
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if total == 0 {
		fmt.Println("No evaluations recorded")
		return nil
	}
	fmt.Print(renderHistory(rows))
	if total > len(rows) {
		fmt.Println(historyMutedStyle.Render(fmt.Sprintf("%d of %d evaluations shown", len(rows), total)))
	}
	return nil
}

func remoteHistory() ([]HistoryRow, error) {
	view, err := NewClient().Record()
	if err != nil {
		return nil, err
	}
	rows := make([]HistoryRow, 0, len(view.Observations))
	for _, o := range view.Observations {
		rows = append(rows, HistoryRow{Config: o.Config, Budget: o.Budget, Loss: o.Loss})
	}
	return rows, nil
}

func localHistory(ctx context.Context) ([]HistoryRow, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log := logger.NewWithWriter(os.Stderr, "warn", cfg.Logging.Format)
	be, err := openBackend(cfg, log)
	if err != nil {
		return nil, err
	}
	if be.store == nil {
		return nil, fmt.Errorf("no persistence backend configured, use --remote to query a server")
	}
	defer be.store.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	entries, err := be.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return entryRows(entries), nil
}

func entryRows(entries []storage.Entry) []HistoryRow {
	rows := make([]HistoryRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, HistoryRow{Config: e.Config, Budget: e.Budget, Loss: e.Loss})
	}
	return rows
}

func filterBudget(rows []HistoryRow, budget float64) []HistoryRow {
	out := rows[:0]
	for _, r := range rows {
		if r.Budget == budget {
			out = append(out, r)
		}
	}
	return out
}

// sortRows orders by budget descending, then loss ascending. Failed
// evaluations go last within their budget.
func sortRows(rows []HistoryRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Budget != rows[j].Budget {
			return rows[i].Budget > rows[j].Budget
		}
		return rowLoss(rows[i]) < rowLoss(rows[j])
	})
}

func rowLoss(r HistoryRow) float64 {
	if r.Loss == nil {
		return math.Inf(1)
	}
	return *r.Loss
}

func renderHistory(rows []HistoryRow) string {
	var b strings.Builder
	b.WriteString(historyHeaderStyle.Render(fmt.Sprintf("%4s  %10s  %12s  %s", "#", "BUDGET", "LOSS", "CONFIG")))
	b.WriteString("\n")

	for i, r := range rows {
		loss := fmt.Sprintf("%12s", "failed")
		if r.Loss != nil {
			loss = fmt.Sprintf("%12.6g", *r.Loss)
		}
		line := fmt.Sprintf("%4d  %10g  %s  %s", i+1, r.Budget, loss, formatParams(r.Config))
		if r.Loss == nil {
			line = historyFailedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func formatParams(cfg space.Config) string {
	parts := make([]string, 0, len(cfg))
	for _, k := range space.SortedKeys(cfg) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, cfg[k]))
	}
	return strings.Join(parts, " ")
}

