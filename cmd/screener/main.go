package main

import "os"

func main() {
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(indexesCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
