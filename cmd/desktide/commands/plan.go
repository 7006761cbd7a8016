package commands

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/desktide/desktide/pkg/config"
	"github.com/desktide/desktide/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var (
		skip []string
		gpu  string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the ordered execution plan without applying it",
		Long: `Plan validates the configuration, orders the resources by their
declared dependencies and prints the resulting execution plan. Nothing
on the system is touched.`,
		Example: `  desktide plan
  desktide plan --skip gaming --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			resources, err := loadResources(config.Modes{Skip: skip, GPU: gpu})
			if err != nil {
				return err
			}

			plan, err := engine.BuildPlan(resources)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}
			plan.Render(os.Stdout)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&skip, "skip", nil, "feature label to skip (repeatable)")
	cmd.Flags().StringVar(&gpu, "gpu", "", "GPU vendor whose resources to include")

	return cmd
}
