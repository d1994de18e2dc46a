package commands

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/couchcryptid/climate-series-service/internal/adapter/netcdf"
	"github.com/couchcryptid/climate-series-service/internal/cli/ui"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var (
		data   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "summarize the collections of a NetCDF dataset",
		Long: `List every variable directory of a dataset with its file and
observation counts, time span, bands, scene properties, and grids.`,
		Example: `  $ eoctl inspect --data ./data
  $ eoctl inspect -d ./data --json`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, err := netcdf.NewProvider(data).Inspect(cmd.Context())
			if err != nil {
				return fmt.Errorf("inspect %s: %w", data, err)
			}
			if asJSON {
				body, err := sonic.ConfigStd.MarshalIndent(infos, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderInspect(data, infos))
			for _, info := range infos {
				if !info.Known {
					ui.PrintWarning(cmd.ErrOrStderr(), "%s is not a known variable and will never be queried", info.Variable)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", sharedcfg.EnvOrDefault("RASTER_DATA_DIR", "./data"), "NetCDF dataset directory")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a tree")
	return cmd
}
