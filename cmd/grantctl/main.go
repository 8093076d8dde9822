package main

import (
	"fmt"
	"os"

	"github.com/platinummonkey/grant/pkg/cli"
)

func main() {
	rootCmd := cli.NewRootCommand(os.Stdout)

	if err := rootCmd.Execute(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
