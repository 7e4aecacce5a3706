package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/funnel-optimizer/internal/model"
	"github.com/sells-group/funnel-optimizer/internal/report"
)

var (
	runCadence string
	runDate    string
	runJSON    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one engine pass and persist the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cadence, ok := model.ParseCadence(runCadence)
		if !ok {
			return eris.Errorf("invalid cadence %q (daily, weekly, or monthly)", runCadence)
		}

		if err := cfg.Validate(); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		runner, err := initRunner(st)
		if err != nil {
			return err
		}

		rep, err := runner.Run(ctx, cadence, runDate)
		if err != nil {
			zap.L().Error("run failed", zap.Error(err))
			return err
		}

		if runJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		_, err = os.Stdout.WriteString(report.FormatReport(*rep))
		return err
	},
}

func init() {
	runCmd.Flags().StringVar(&runCadence, "cadence", "daily", "run cadence: daily, weekly, or monthly")
	runCmd.Flags().StringVar(&runDate, "date", "", "explicit run date (YYYY-MM-DD, default today)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the report as JSON instead of markdown")
	rootCmd.AddCommand(runCmd)
}
