package room

import (
	"fmt"
	"os"
	"time"

	"github.com/codehive-dev/codehive/internal/cli/output"
	"github.com/codehive-dev/codehive/internal/cli/timeutil"
	"github.com/spf13/cobra"
)

var listOutput string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List rooms",
	Long: `List live rooms in the configured store.

Expired room records are swept by the store and do not appear.

Examples:
  # List rooms as table
  codehive room list

  # List as JSON
  codehive room list -o json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// roomRow holds room info for display.
type roomRow struct {
	Code      string    `json:"code" yaml:"code"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
}

// RoomList is a list of rooms for table rendering.
type RoomList []roomRow

// Headers implements TableRenderer.
func (rl RoomList) Headers() []string {
	return []string{"CODE", "CREATED", "EXPIRES"}
}

// Rows implements TableRenderer.
func (rl RoomList) Rows() [][]string {
	rows := make([][]string, 0, len(rl))
	for _, r := range rl {
		rows = append(rows, []string{
			r.Code,
			r.CreatedAt.Local().Format(timeutil.LocalTimeFormat),
			timeutil.FormatRemaining(r.ExpiresAt),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(listOutput)
	if err != nil {
		return err
	}

	store, cfg, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list rooms: %w", err)
	}

	rows := make(RoomList, 0, len(records))
	for _, r := range records {
		rows = append(rows, roomRow{
			Code:      r.Code,
			CreatedAt: r.CreatedAt,
			ExpiresAt: r.CreatedAt.Add(cfg.Store.TTL),
		})
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, rows)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, rows)
	default:
		if len(rows) == 0 {
			fmt.Println("No rooms found.")
			return nil
		}
		return output.PrintTable(os.Stdout, rows)
	}
}
