// Package commands implements the eoctl command tree.
package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/couchcryptid/climate-series-service/internal/cli/ui"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// NewRootCmd builds the eoctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "eoctl",
		Short:   "Monthly earth-observation series for a region",
		Version: version,
		Long: `Compute monthly time series for a region of interest from a local
directory of NetCDF collections: water balance (precipitation minus
evapotranspiration), Palmer drought classes, Sentinel-2 spectral indices,
and land-cover class areas.`,
		Example: `  # Water balance for 2023 as a table
  $ eoctl run --region farm.geojson --data ./data --kind water_balance --start 2023-01-01 --end 2024-01-01

  # Drought classes exported as CSV
  $ eoctl run -r farm.geojson -k drought --start 2020-01-01 --end 2024-01-01 -o csv > drought.csv

  # Show what a dataset directory holds
  $ eoctl inspect --data ./data`,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(fmt.Sprintf("eoctl version %s\n", version))

	root.AddCommand(newRunCmd())
	root.AddCommand(newInspectCmd())

	root.SetUsageTemplate(usageTemplate())
	root.SetHelpTemplate(usageTemplate())
	return root
}

// Execute runs the command tree and prints any error.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		ui.PrintError(os.Stderr, "%s", errorMessage(err))
	}
	return err
}

// errorMessage prefers the user-facing message of typed analysis errors.
func errorMessage(err error) string {
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	return err.Error()
}

func usageTemplate() string {
	return `{{if .Long}}{{.Long}}

{{end}}` + ui.Styles.Bold.Render("USAGE") + `
  {{.UseLine}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}

{{if .HasExample}}` + ui.Styles.Bold.Render("EXAMPLES") + `
{{.Example}}

{{end}}{{if .HasAvailableSubCommands}}` + ui.Styles.Bold.Render("COMMANDS") + `{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableLocalFlags}}` + ui.Styles.Bold.Render("OPTIONS") + `
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
}
