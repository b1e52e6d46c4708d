// Package room implements room management subcommands.
package room

import (
	"fmt"

	"github.com/codehive-dev/codehive/pkg/config"
	rooms "github.com/codehive-dev/codehive/pkg/room"
	"github.com/spf13/cobra"
)

// Cmd is the room subcommand.
var Cmd = &cobra.Command{
	Use:   "room",
	Short: "Room management",
	Long: `Manage rooms in the configured store.

These commands open the room store directly and are meant for
administration while the server is stopped; the badger backend holds an
exclusive lock, so a running server and this command cannot share it.
Clients normally create rooms over the websocket API.

Subcommands:
  create  Create a new room
  list    List rooms
  delete  Delete a room`,
}

func init() {
	Cmd.AddCommand(createCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(deleteCmd)
}

// openStore loads the configuration and opens the room store it points at.
// The caller must close the returned store.
func openStore(cmd *cobra.Command) (rooms.Store, *config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return nil, nil, err
	}

	store, err := config.CreateStore(cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open room store: %w", err)
	}
	return store, cfg, nil
}
