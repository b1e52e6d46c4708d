package room

import (
	"fmt"
	"strings"

	"github.com/codehive-dev/codehive/internal/cli/prompt"
	rooms "github.com/codehive-dev/codehive/pkg/room"
	"github.com/spf13/cobra"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <code>",
	Short: "Delete a room",
	Long: `Delete a room record from the configured store.

Deleting the record prevents new joins with this code. It does not touch
any in-memory state of a running server.

Examples:
  # Delete with confirmation prompt
  codehive room delete AB3X9K

  # Delete without prompting
  codehive room delete AB3X9K --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
}

func runDelete(cmd *cobra.Command, args []string) error {
	code := strings.ToUpper(strings.TrimSpace(args[0]))

	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Delete room '%s'?", code), deleteForce)
	if err != nil {
		if prompt.IsAborted(err) {
			fmt.Println("\nAborted.")
			return nil
		}
		return err
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}

	store, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Delete(cmd.Context(), code); err != nil {
		if rooms.IsNotFound(err) {
			return fmt.Errorf("room %q not found", code)
		}
		return fmt.Errorf("failed to delete room: %w", err)
	}

	fmt.Printf("Room '%s' deleted.\n", code)
	return nil
}
