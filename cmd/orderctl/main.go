package main

import (
	"fmt"
	"os"

	"github.com/vladislavdragonenkov/ordercore/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "orderctl:", err)
		os.Exit(1)
	}
}
