// Package dbpathcmder resolves the recall SQLite database for commands that
// open it directly, and provides the dbpath command that prints it.
package dbpathcmder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/pkg/dotdir"
)

// ErrNoDatabase is returned when no candidate database exists.
var ErrNoDatabase = errors.New("could not find recall database; pass --sqlite")

// ResolveDatabasePath returns the first existing database among: the
// override, RECALL_DB, $XDG_DATA_HOME/recall, ~/.recall and ./.recall.
func ResolveDatabasePath(override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if envPath := strings.TrimSpace(os.Getenv("RECALL_DB")); envPath != "" {
		return envPath, nil
	}

	for _, candidate := range candidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", ErrNoDatabase
}

func candidates() []string {
	out := []string{
		filepath.Join(".recall", dotdir.DatabaseFile),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		out = append([]string{filepath.Join(home, ".recall", dotdir.DatabaseFile)}, out...)
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		out = append([]string{filepath.Join(xdgHome, "recall", dotdir.DatabaseFile)}, out...)
	}

	return out
}

func NewDBPathCmd() *cobra.Command {
	var sqlitePath string

	cmd := &cobra.Command{
		Use:   "dbpath",
		Short: "Print the path of the recall database",
		Long: `Print the path of the recall SQLite database.

Resolution order: --sqlite, RECALL_DB, $XDG_DATA_HOME/recall/recall.db,
~/.recall/recall.db, ./.recall/recall.db.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := ResolveDatabasePath(sqlitePath)
			if err != nil {
				return err
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolving %s: %w", path, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), abs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sqlitePath, "sqlite", "s", "", "Path to the SQLite database")
	return cmd
}
