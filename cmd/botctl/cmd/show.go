package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// showCmd prints a stored configuration entry.
var showCmd = &cobra.Command{
	Use:   "show KEY",
	Short: "Show a stored configuration entry, e.g. bot_ADA1",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		repo, _, err := openConfigRepo()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		config, err := repo.Get(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("%s:\n", config.Key)
		for _, value := range config.Values {
			fmt.Printf("  %s = %v\n", value.Name, value.Value)
		}
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
