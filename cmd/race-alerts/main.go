package main

import "github.com/pfrederiksen/race-alerts/internal/cli"

func main() {
	cli.Execute()
}
