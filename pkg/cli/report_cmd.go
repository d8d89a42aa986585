package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	internaldb "sqlpilot/internal/db"
	"sqlpilot/internal/db/repository"
	"sqlpilot/internal/service/report"
)

func newReportCmd() *cobra.Command {
	var (
		dbPath string
		days   int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the metrics report for recent pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("db") {
				if v := os.Getenv("LOG_DB_PATH"); v != "" {
					dbPath = v
				}
			}

			writeDB, readDB, err := internaldb.OpenSQLitePair(dbPath, 4)
			if err != nil {
				return fmt.Errorf("open query log: %w", err)
			}
			defer writeDB.Close() //nolint:errcheck
			defer readDB.Close()  //nolint:errcheck
			if err := internaldb.RunMigrations(writeDB); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}

			repo := repository.NewQueryLogRepo(writeDB, readDB)
			text, err := report.NewService(repo, nil).Generate(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "sqlpilot_log.sqlite", "query log database path (LOG_DB_PATH)")
	cmd.Flags().IntVar(&days, "days", 7, "window length in days, ending now")
	return cmd
}
