package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "turnvault"}

	root.AddCommand(serveCMD(), sessionsCMD(), extractCMD(), exportCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
