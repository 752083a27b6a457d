package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/sitekit/internal/build"
	"github.com/conneroisu/sitekit/internal/services"
	"github.com/conneroisu/sitekit/internal/tasks"
)

var runCmd = &cobra.Command{
	Use:   "run <task>...",
	Short: "Run tasks in order",
	Long: `Run the named tasks one after another, stopping at the first failure.

Examples:
  sitekit run clean styles
  sitekit run build browser`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTasks(cmd, args...)
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the available tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _, err := newProject(cmd)
		if err != nil {
			return err
		}
		return printTasks(cmd, project.Registry())
	},
}

func init() {
	rootCmd.AddCommand(
		taskCommand(build.TaskClean, "Remove everything under the output directory"),
		taskCommand(build.TaskHTML, "Render and minify the HTML pages"),
		taskCommand(build.TaskStyles, "Compile, prefix and minify the stylesheet", "css"),
		taskCommand(build.TaskScripts, "Concatenate and minify the scripts", "js"),
		taskCommand(build.TaskImages, "Optimise the images"),
		taskCommand(build.TaskFonts, "Copy the fonts"),
		taskCommand(services.TaskBuild, "Clean, then build every category in parallel", "b"),
		taskCommand(services.TaskWatch, "Build, then watch the sources and serve with live reload", "w"),
		taskCommand(services.TaskBrowser, "Serve the output directory with live reload", services.TaskServe, "s"),
		runCmd,
		tasksCmd,
	)
}

func printTasks(cmd *cobra.Command, registry *tasks.Registry) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	def := registry.Default()
	for _, name := range registry.Names() {
		t, _ := registry.Get(name)
		desc := tasks.Describe(t)
		if children := tasks.Children(t); len(children) > 0 {
			desc += " " + describeChildren(children)
		}
		if t.Name() != name {
			desc = "alias of " + t.Name()
		}
		if name == def {
			desc += " (default)"
		}
		fmt.Fprintf(w, "%s\t%s\n", name, desc)
	}
	return w.Flush()
}

func describeChildren(children []tasks.Task) string {
	parts := make([]string, len(children))
	for i, c := range children {
		if grand := tasks.Children(c); len(grand) > 0 {
			parts[i] = tasks.Describe(c) + describeChildren(grand)
			continue
		}
		parts[i] = c.Name()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
