package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parthraninga/DORA-Metrics/internal/config"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Provision teams, repositories and tokens from a YAML file",
	Long: `Upsert the tokens, repositories and teams declared in a YAML seed file.
Token values may reference environment variables as ${NAME}. Storing tokens
requires DORAMETRICS_SECRET_KEY.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	seed, err := config.LoadSeed(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.applySeed(cmd.Context(), seed); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d tokens, %d repositories, %d teams\n",
		len(seed.Tokens), len(seed.Repositories), len(seed.Teams))
	return nil
}
