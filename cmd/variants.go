package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/funnel-optimizer/internal/model"
)

var (
	variantTag    string
	variantWeight int
)

var variantsCmd = &cobra.Command{
	Use:   "variants",
	Short: "Inspect and manage opener variants",
}

var variantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List opener variants with their weights and counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		variants, err := st.ListOpenerVariants(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TAG\tWEIGHT\tPAUSED\tCALLS\tANSWERED\tENGAGEMENT\tCLOSE")
		for _, v := range variants {
			fmt.Fprintf(w, "%s\t%d%%\t%t\t%d\t%d\t%.1f%%\t%.1f%%\n",
				v.Tag, v.Weight, v.Paused, v.Calls, v.Answered, v.EngagementRate, v.CloseRate)
		}
		return w.Flush()
	},
}

var variantsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new opener variant",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if variantTag == "" {
			return eris.New("--tag is required")
		}
		if variantWeight < 0 || variantWeight > 100 {
			return eris.Errorf("weight %d out of range 0-100", variantWeight)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		return st.UpsertOpenerVariant(ctx, model.OpenerVariant{
			Tag:       variantTag,
			Weight:    variantWeight,
			UpdatedAt: time.Now().UTC(),
		})
	},
}

func init() {
	variantsAddCmd.Flags().StringVar(&variantTag, "tag", "", "variant tag")
	variantsAddCmd.Flags().IntVar(&variantWeight, "weight", 0, "initial traffic-share weight (0-100)")
	variantsCmd.AddCommand(variantsListCmd)
	variantsCmd.AddCommand(variantsAddCmd)
	rootCmd.AddCommand(variantsCmd)
}
