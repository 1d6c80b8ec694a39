package main

import "coinex-trade-bot-go/cmd/botctl/cmd"

func main() {
	cmd.Execute()
}
