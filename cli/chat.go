package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/martinemde/patchloop/agents"
)

func newChatCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to an agent that can use every tool on the project",
		Long: `Starts a line-based conversation with an agent that holds all tools and
keeps one session across turns. Type "exit" to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, g, nil)
			if err != nil {
				return err
			}
			defer a.close()

			agent := agents.NewChatAgent(a.runtime(), a.env)
			defer agent.Close()

			out := cmd.OutOrStdout()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if strings.EqualFold(line, "exit") {
					return nil
				}
				reply, err := agent.Send(cmd.Context(), line)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, reply)
			}
			fmt.Fprintln(out)
			return scanner.Err()
		},
	}
}
