package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "List the Canvas courses visible to the configured token",
	Long: `Query Canvas for the courses the configured token teaches and print
their ids. The id column is what goes into rapd.yaml and --course flags.`,
	RunE: runCourses,
}

func runCourses(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := newCanvasClient(cfg)
	if err != nil {
		return err
	}

	courses, err := client.ListCourses(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list courses: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCODE\tTERM\tNAME")
	for _, c := range courses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Code, c.Term, c.Name)
	}
	return w.Flush()
}
