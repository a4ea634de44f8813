package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/assessment-wizard/internal/observability"
	"github.com/jonathan/assessment-wizard/internal/server"
	"github.com/jonathan/assessment-wizard/internal/store"
	"github.com/jonathan/assessment-wizard/internal/wizard"
)

var (
	statusFile    string
	statusSession string
	statusJSON    bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved assessment state",
	Long: `Show where the saved assessment stands. The state is read from the local
store, from a server session's namespace with --session, or from a JSON
snapshot with --file.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusFile, "file", "f", "", "Read a wizard state snapshot from this JSON file")
	statusCmd.Flags().StringVar(&statusSession, "session", "", "Server session id")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw state as JSON")
	rootCmd.AddCommand(statusCmd)
}

// sessionStore scopes st to a server session's entries.
func sessionStore(st *store.Store, id string) (*store.Store, error) {
	sid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", id, err)
	}
	return st.WithNamespace(server.SessionNamespace(sid)), nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	state, found, err := loadState(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !found {
		_, _ = fmt.Fprintln(out, "No saved assessment.")
		return nil
	}
	if _, err := wizard.Restore(state); err != nil {
		return fmt.Errorf("saved state is invalid: %w", err)
	}
	if statusJSON {
		return writeJSON(out, state)
	}

	p := observability.NewPrinter(out)
	p.PrintStep(state)
	if state.Analysis != nil {
		p.PrintAnalysis(state.Analysis)
	}
	if state.Results != nil {
		p.PrintResults(*state.Results)
	} else {
		for i := range state.Completed {
			if r := state.Completed[i].Result; r != nil {
				p.PrintResult(r)
			}
		}
	}
	if iv := state.Interview; iv != nil {
		for _, t := range iv.History {
			p.PrintTurn(t)
		}
		if iv.Final {
			_, _ = fmt.Fprintln(out, "Interview complete.")
		}
	}
	if state.Error != "" {
		_, _ = fmt.Fprintf(out, "Last error: %s\n", state.Error)
	}
	return nil
}

func loadState(cmd *cobra.Command) (wizard.State, bool, error) {
	var state wizard.State
	if statusFile != "" {
		data, err := os.ReadFile(statusFile)
		if err != nil {
			return state, false, fmt.Errorf("failed to read state file: %w", err)
		}
		if err := json.Unmarshal(data, &state); err != nil {
			return state, false, fmt.Errorf("failed to parse state file: %w", err)
		}
		return state, true, nil
	}

	st, err := openStore(cfg)
	if err != nil {
		return state, false, err
	}
	defer func() { _ = st.Close() }()
	if statusSession != "" {
		if st, err = sessionStore(st, statusSession); err != nil {
			return state, false, err
		}
	}
	if _, err := st.Load(cmd.Context(), store.KeyWizardState, &state); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return state, false, nil
		}
		return state, false, err
	}
	return state, true, nil
}
