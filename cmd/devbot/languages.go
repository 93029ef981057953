package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/devbot/internal/runtime"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported languages",
	Run: func(cmd *cobra.Command, args []string) {
		for _, tag := range runtime.Default().Tags() {
			fmt.Println(tag)
		}
	},
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}
