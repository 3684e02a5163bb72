// ABOUTME: Commands for inspecting and managing saved conversations
// ABOUTME: show, list, clear and export operate on the configured history store
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/harper/ragchat/internal/history"
	"github.com/harper/ragchat/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	historySession string
	historyOutput  string
)

// NewHistoryCmd creates the history command and its subcommands
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and manage saved conversations",
		Long: `Inspect and manage conversations saved between runs.

Conversations are stored per session in the history backend
(history.backend: file, charm or none).`,
	}

	cmd.PersistentFlags().StringVarP(&historySession, "session", "s", history.DefaultSession, "Session ID")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print a saved conversation",
		Args:  cobra.NoArgs,
		RunE:  runHistoryShow,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList,
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete a saved conversation",
		Args:  cobra.NoArgs,
		RunE:  runHistoryClear,
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export a saved conversation as YAML or JSON",
		Example: `  ragchat history export --session work > work.yaml
  ragchat history export --format json --output work.json`,
		Args: cobra.NoArgs,
		RunE: runHistoryExport,
	}
	exportCmd.Flags().StringVarP(&historyOutput, "output", "o", "", "Write to file instead of stdout")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync saved conversations with the Charm cloud",
		Long: `Push and pull saved conversations through Charm KV.

Only available with history.backend set to charm. The store syncs on open
and after every write; this forces a round trip now.`,
		Args: cobra.NoArgs,
		RunE: runHistorySync,
	}

	cmd.AddCommand(showCmd, listCmd, clearCmd, exportCmd, syncCmd)
	return cmd
}

// withHistory opens the history store for the duration of fn
func withHistory(fn func(store history.Store) error) error {
	store, closeStore, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	if store == nil {
		return errors.New("history is disabled (history.backend is none)")
	}
	return fn(store)
}

func loadSnapshot(ctx context.Context, store history.Store) (*history.Snapshot, error) {
	if err := history.ValidateSession(historySession); err != nil {
		return nil, err
	}
	snap, err := store.Load(ctx, historySession)
	if errors.Is(err, history.ErrNotFound) {
		return nil, fmt.Errorf("no saved conversation for session %q", historySession)
	}
	return snap, err
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	return withHistory(func(store history.Store) error {
		snap, err := loadSnapshot(cmd.Context(), store)
		if err != nil {
			return err
		}
		if jsonOutput() {
			return writeSnapshot(cmd.OutOrStdout(), snap, "json")
		}

		out := cmd.OutOrStdout()
		info(out, "%s\n\n", dimStyle.Render(fmt.Sprintf("session %s, updated %s", snap.Session, formatTime(snap.UpdatedAt))))
		for _, m := range snap.Messages {
			switch m.Role {
			case models.RoleUser:
				fmt.Fprintf(out, "%s %s\n", userStyle.Render("you>"), m.Content)
			case models.RoleAssistant:
				fmt.Fprintf(out, "%s %s\n\n", assistantStyle.Render("bot>"), m.Content)
			default:
				fmt.Fprintf(out, "%s\n\n", dimStyle.Render("system: "+m.Content))
			}
		}
		return nil
	})
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	return withHistory(func(store history.Store) error {
		sessions, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput() {
			data, err := json.MarshalIndent(map[string]interface{}{"sessions": sessions}, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
			return nil
		}
		if len(sessions) == 0 {
			info(cmd.OutOrStdout(), "No saved sessions\n")
			return nil
		}
		for _, s := range sessions {
			fmt.Fprintln(cmd.OutOrStdout(), s)
		}
		return nil
	})
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	return withHistory(func(store history.Store) error {
		if err := history.ValidateSession(historySession); err != nil {
			return err
		}
		if err := store.Delete(cmd.Context(), historySession); err != nil {
			return err
		}
		info(cmd.OutOrStdout(), "✓ Cleared session %s\n", historySession)
		return nil
	})
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	return withHistory(func(store history.Store) error {
		snap, err := loadSnapshot(cmd.Context(), store)
		if err != nil {
			return err
		}

		format := "yaml"
		if jsonOutput() {
			format = "json"
		}

		if historyOutput == "" {
			return writeSnapshot(cmd.OutOrStdout(), snap, format)
		}

		f, err := os.Create(historyOutput)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		if err := writeSnapshot(f, snap, format); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		info(cmd.ErrOrStderr(), "✓ Exported %d message(s) to %s\n", len(snap.Messages), historyOutput)
		return nil
	})
}

func writeSnapshot(w io.Writer, snap *history.Snapshot, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}
	return enc.Close()
}

func runHistorySync(cmd *cobra.Command, args []string) error {
	if cfg.History.Backend != "charm" {
		return fmt.Errorf("sync needs history.backend charm, got %q", cfg.History.Backend)
	}

	client, err := newCharmClient(cfg)
	if err != nil {
		return fmt.Errorf("opening charm store: %w", err)
	}
	defer client.Close()

	if err := client.Sync(); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	id, err := client.ID()
	if err != nil {
		logger.Debug().Err(err).Msg("could not read charm id")
	}
	sessions, err := history.NewCharmStore(client).List(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput() {
		data, err := json.MarshalIndent(map[string]interface{}{"charm_id": id, "sessions": sessions}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
		return nil
	}
	info(cmd.OutOrStdout(), "✓ Synced %d session(s)\n", len(sessions))
	return nil
}
