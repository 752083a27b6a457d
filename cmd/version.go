package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/sitekit/internal/version"
)

var (
	versionFormat   string
	versionDetailed bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the sitekit version, commit, build time and toolchain.

Examples:
  sitekit version
  sitekit version --detailed
  sitekit version --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch versionFormat {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(version.GetBuildInfo())
		case "text":
			if versionDetailed {
				fmt.Fprintln(out, version.GetDetailedVersion())
				return nil
			}
			fmt.Fprintf(out, "sitekit %s\n", version.GetShortVersion())
			return nil
		default:
			return fmt.Errorf("unsupported format: %s (supported: text, json)", versionFormat)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "output format (text, json)")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "show detailed version information")
}
