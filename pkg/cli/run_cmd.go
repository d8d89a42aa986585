package cli

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sqlpilot/internal/app"
	"sqlpilot/internal/config"
	internaldb "sqlpilot/internal/db"
	"sqlpilot/internal/service/eval"
	"sqlpilot/internal/service/report"
)

func newRunCmd() *cobra.Command {
	var (
		input     string
		output    string
		workers   int
		timeout   time.Duration
		noPersist bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a question set through the pipeline",
		Long: "Reads a CSV of questions (columns: question, context, category), runs each through " +
			"the generate-execute-refine pipeline, writes per-question results, and prints a summary.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				cfg.EvalWorkers = workers
			}
			if cmd.Flags().Changed("timeout") {
				cfg.QuestionTimeout = timeout
			}

			in, err := os.Open(input) //nolint:gosec // operator-supplied path
			if err != nil {
				return fmt.Errorf("open question set: %w", err)
			}
			defer in.Close() //nolint:errcheck
			questions, err := eval.LoadQuestionsCSV(in)
			if err != nil {
				return err
			}

			targetDB, err := sql.Open("duckdb", cfg.TargetDBPath)
			if err != nil {
				return fmt.Errorf("open target database: %w", err)
			}
			defer targetDB.Close() //nolint:errcheck
			if cfg.BootstrapSQL != "" {
				script, err := os.ReadFile(cfg.BootstrapSQL) //nolint:gosec // operator-supplied path
				if err != nil {
					return fmt.Errorf("read bootstrap sql: %w", err)
				}
				if _, err := targetDB.Exec(string(script)); err != nil {
					return fmt.Errorf("run bootstrap sql: %w", err)
				}
			}

			deps := app.Deps{Cfg: cfg, TargetDB: targetDB}
			if !noPersist {
				writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.LogDBPath, 4)
				if err != nil {
					return fmt.Errorf("open query log: %w", err)
				}
				defer writeDB.Close() //nolint:errcheck
				defer readDB.Close()  //nolint:errcheck
				if err := internaldb.RunMigrations(writeDB); err != nil {
					return fmt.Errorf("run migrations: %w", err)
				}
				deps.WriteDB = writeDB
				deps.ReadDB = readDB
			}

			a, err := app.New(deps)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Running %d questions (workers=%d)\n", len(questions), cfg.EvalWorkers)
			results, err := a.Services.Eval.Run(cmd.Context(), questions)
			if err != nil {
				return err
			}

			out, err := os.Create(output) //nolint:gosec // operator-supplied path
			if err != nil {
				return fmt.Errorf("create results file: %w", err)
			}
			defer out.Close() //nolint:errcheck
			if err := eval.WriteResultsCSV(out, results); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Results written to %s\n\n", output)
			fmt.Fprint(cmd.OutOrStdout(), report.Format(a.Services.Eval.Summarize(results), nil))
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "questions.csv", "question set CSV to run")
	cmd.Flags().StringVarP(&output, "output", "o", "eval_results.csv", "file to write per-question results to")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "number of questions to run concurrently")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "per-question timeout")
	cmd.Flags().BoolVar(&noPersist, "no-persist", false, "skip writing outcomes to the query log")
	return cmd
}
