package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// addBotCmd stores a bot's parameters under bot_<label>.
var addBotCmd = &cobra.Command{
	Use:   "add-bot",
	Short: "Register a bot's trading parameters",
	Run: func(cmd *cobra.Command, args []string) {
		label, _ := cmd.Flags().GetString("label")
		pair, _ := cmd.Flags().GetString("pair")
		exchange, _ := cmd.Flags().GetString("exchange")
		minBuy, _ := cmd.Flags().GetFloat64("min-buy")

		repo, _, err := openConfigRepo()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		err = repo.AddBot(label, map[string]any{
			"pair":                pair,
			"exchange":            exchange,
			"min_buy_amount_usdt": minBuy,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("bot %s saved\n", label)
	},
}

func init() {
	rootCmd.AddCommand(addBotCmd)
	addBotCmd.Flags().String("label", "", "Bot label, e.g. ADA1")
	addBotCmd.Flags().String("pair", "", "Trading pair, e.g. ADA/USDT")
	addBotCmd.Flags().String("exchange", "coinex", "Exchange name")
	addBotCmd.Flags().Float64("min-buy", 0, "Minimum buy amount in USDT")
	_ = addBotCmd.MarkFlagRequired("label")
	_ = addBotCmd.MarkFlagRequired("pair")
}
