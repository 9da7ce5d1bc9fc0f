package main

import (
	"fmt"
	"os"

	"github.com/container-tools/dissect/cmd/dockerfile"
	"github.com/container-tools/dissect/cmd/inspect"
	"github.com/container-tools/dissect/cmd/squash"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dissect",
	Short: "dissect",
	Long:  ``,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(2)
	},
}

func init() {
	rootCmd.AddCommand(dockerfile.Command)
	rootCmd.AddCommand(inspect.Command)
	rootCmd.AddCommand(squash.Command)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
}
