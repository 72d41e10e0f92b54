package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jetstack/mediarelay/pkg/version"
)

var versionFlags struct {
	verbose bool
	short   bool
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the version",
	Long:  "Display the mediarelay version and, with --verbose, how it was built.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if versionFlags.short {
			fmt.Println(version.AppVersion)
			return
		}
		printVersion(versionFlags.verbose)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionFlags.verbose, "verbose", false, "Also display the commit, build date and Go version.")
	versionCmd.Flags().BoolVar(&versionFlags.short, "short", false, "Only display the version number.")
}
