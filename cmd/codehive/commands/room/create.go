package room

import (
	"fmt"

	"github.com/codehive-dev/codehive/internal/cli/prompt"
	"github.com/codehive-dev/codehive/internal/cli/timeutil"
	rooms "github.com/codehive-dev/codehive/pkg/room"
	"github.com/spf13/cobra"
)

var createPassword string

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new room",
	Long: `Create a new room in the configured store.

The 6-character room code is generated automatically. If --password is
not provided, you will be prompted to enter one interactively.

Examples:
  # Create a room interactively
  codehive room create

  # Create a room non-interactively
  codehive room create --password hunter2`,
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVarP(&createPassword, "password", "p", "", "Room password (prompts if not provided)")
}

func runCreate(cmd *cobra.Command, args []string) error {
	password := createPassword
	if password == "" {
		var err error
		password, err = prompt.PasswordWithConfirmation("Room password", "Confirm password", 1)
		if err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("\nAborted.")
				return nil
			}
			return err
		}
	}

	store, cfg, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	r, err := rooms.CreateRoom(cmd.Context(), store, password)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}

	expires := r.CreatedAt.Add(cfg.Store.TTL)

	fmt.Println("Room created.")
	fmt.Println()
	fmt.Printf("  Code:    %s\n", r.Code)
	fmt.Printf("  Expires: %s\n", expires.Local().Format(timeutil.LocalTimeFormat))
	fmt.Println()
	fmt.Println("Share the code and password with collaborators to let them join.")

	return nil
}
