package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/conneroisu/sitekit/internal/scaffolding"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Scaffold a new site",
	Long: `Write a starter source tree and a commented .sitekit.yml.

Existing files are kept unless --force is given.

Examples:
  sitekit init
  sitekit init my-site
  sitekit init --force`,
	Aliases: []string{"i"},
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}

		result, err := scaffolding.Init(afero.NewOsFs(), scaffolding.Options{
			Dir:    dir,
			Force:  initForce,
			Config: cfg,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, name := range result.Created {
			fmt.Fprintf(out, "created  %s\n", name)
		}
		for _, name := range result.Skipped {
			fmt.Fprintf(out, "skipped  %s (exists, use --force to overwrite)\n", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite existing files")
}
