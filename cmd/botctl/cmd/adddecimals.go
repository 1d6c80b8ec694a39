package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// addDecimalsCmd stores per-market precision under decimals_<exchange>.
// Markets are given as MARKET=priceDecimals:amountDecimals.
var addDecimalsCmd = &cobra.Command{
	Use:   "add-decimals MARKET=price:amount ...",
	Short: "Register per-market decimal precision for an exchange",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exchange, _ := cmd.Flags().GetString("exchange")

		pairs := map[string]map[string]int{}
		for _, arg := range args {
			market, spec, ok := strings.Cut(arg, "=")
			if !ok {
				fmt.Fprintf(os.Stderr, "invalid market spec %q\n", arg)
				os.Exit(1)
			}
			priceStr, amountStr, ok := strings.Cut(spec, ":")
			if !ok {
				fmt.Fprintf(os.Stderr, "invalid precision spec %q\n", arg)
				os.Exit(1)
			}
			price, err := strconv.Atoi(priceStr)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid price decimals in %q\n", arg)
				os.Exit(1)
			}
			amount, err := strconv.Atoi(amountStr)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid amount decimals in %q\n", arg)
				os.Exit(1)
			}
			pairs[market] = map[string]int{"price": price, "amount": amount}
		}

		repo, _, err := openConfigRepo()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := repo.AddDecimals(exchange, pairs); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("decimals for %s saved\n", exchange)
	},
}

func init() {
	rootCmd.AddCommand(addDecimalsCmd)
	addDecimalsCmd.Flags().String("exchange", "coinex", "Exchange name")
}
