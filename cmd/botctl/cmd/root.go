package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"coinex-trade-bot-go/internal/store"
)

var dsn string

// rootCmd is the base command for the bot admin tool.
var rootCmd = &cobra.Command{
	Use:   "botctl",
	Short: "Manage bot configuration in the local store",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "trader.db", "Database DSN")
}

// openConfigRepo opens the store and returns the config repository.
func openConfigRepo() (*store.BotConfigRepository, *gorm.DB, error) {
	db, err := store.Open(dsn)
	if err != nil {
		return nil, nil, err
	}
	return store.NewBotConfigRepository(db), db, nil
}
