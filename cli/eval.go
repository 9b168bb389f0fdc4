package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newEvalCmd(g *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the project tests once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, g, nil)
			if err != nil {
				return err
			}
			defer a.close()

			runner := a.evaluator()
			res, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			} else {
				fmt.Fprintf(out, "$ %s\n", runner.Command())
				if res.Output != "" {
					fmt.Fprintln(out, res.Output)
				}
			}
			if !res.Success {
				return fmt.Errorf("tests failed")
			}
			fmt.Fprintln(out, "tests passed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
