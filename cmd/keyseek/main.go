package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "keyseek"}

	root.AddCommand(serveCMD(), migrateCMD(), searchCMD(), sessionsCMD(), healthCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
