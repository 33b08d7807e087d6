package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func NewCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or overwrite stored checkpoints",
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the checkpoint stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			store, err := openStore(c.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			raw, found, err := store.GetRaw(c.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no checkpoint stored under %q", args[0])
			}
			fmt.Fprintln(c.OutOrStdout(), string(raw))
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <json>",
		Short: "Store a JSON checkpoint under key; null resets it",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			var value json.RawMessage
			if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
				return fmt.Errorf("checkpoint value is not JSON: %w", err)
			}

			store, err := openStore(c.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if !store.Enabled() {
				return fmt.Errorf("checkpoint store is disabled; set CHECKPOINT_NAME and CHECKPOINT_HOST")
			}
			return store.Set(c.Context(), args[0], value)
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}
