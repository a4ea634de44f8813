package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/assessment-wizard/internal/store"
)

var (
	storeNamespace string
	storeReveal    bool
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect the local state store",
	Long: `Inspect and maintain the local state store. Server sessions keep their
entries under the namespace data/<session id>.`,
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored keys",
	Args:  cobra.NoArgs,
	RunE: withStore(func(cmd *cobra.Command, st *store.Store, _ []string) error {
		entries, err := st.List(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			_, _ = fmt.Fprintln(out, "No entries.")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "KEY\tREVISION\tSCHEMA\tUPDATED")
		for _, e := range entries {
			_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Key, e.Revision, e.Schema, e.UpdatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	}),
}

var storeGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a stored value",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, st *store.Store, args []string) error {
		key := args[0]
		if isSecretKey(key) && !storeReveal {
			if _, err := st.Get(cmd.Context(), key); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is a secret; pass --reveal to print it\n", key)
			return nil
		}
		if isSecretKey(key) {
			v, err := st.Secret(cmd.Context(), key)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		}
		e, err := st.Get(cmd.Context(), key)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), e)
	}),
}

var storeDeleteCmd = &cobra.Command{
	Use:   "delete <key>...",
	Short: "Delete stored keys",
	Args:  cobra.MinimumNArgs(1),
	RunE: withStore(func(cmd *cobra.Command, st *store.Store, args []string) error {
		for _, key := range args {
			_, err := st.Get(cmd.Context(), key)
			if errors.Is(err, store.ErrNotFound) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: not found\n", key)
				continue
			}
			if err != nil {
				return err
			}
			if err := st.Delete(cmd.Context(), key); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: deleted\n", key)
		}
		return nil
	}),
}

var storeMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Rename legacy keys to their current names",
	Args:  cobra.NoArgs,
	RunE: withStore(func(cmd *cobra.Command, st *store.Store, _ []string) error {
		migrated, err := st.Migrate(cmd.Context())
		for _, key := range migrated {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", key)
		}
		if err != nil {
			return err
		}
		if len(migrated) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Nothing to migrate.")
		}
		return nil
	}),
}

var storeSetTokenCmd = &cobra.Command{
	Use:   "set-token <token>",
	Short: "Save the API access token, sealed when STORE_PASSPHRASE is set",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, st *store.Store, args []string) error {
		if err := st.SetSecret(cmd.Context(), store.KeyAccessToken, args[0]); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Access token saved.")
		return nil
	}),
}

func init() {
	storeCmd.PersistentFlags().StringVar(&storeNamespace, "namespace", "", "Key namespace, e.g. data/<session id>")
	storeGetCmd.Flags().BoolVar(&storeReveal, "reveal", false, "Print secret values")
	storeCmd.AddCommand(storeListCmd, storeGetCmd, storeDeleteCmd, storeMigrateCmd, storeSetTokenCmd)
	rootCmd.AddCommand(storeCmd)
}

// withStore opens the configured store, scoped to --namespace, around fn.
func withStore(fn func(cmd *cobra.Command, st *store.Store, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		if storeNamespace != "" {
			st = st.WithNamespace(storeNamespace)
		}
		return fn(cmd, st, args)
	}
}

func isSecretKey(key string) bool {
	return key == store.KeyAccessToken || key == store.KeyLegacyToken
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
