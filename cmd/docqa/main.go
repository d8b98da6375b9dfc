package main

import (
	"os"

	"docqa/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
