package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "dealgraph",
	Short: "Dealgraph: hybrid knowledge retrieval for M&A due diligence",
	Long: `Dealgraph ingests deal documents, Q&A responses and analyst chat into a
temporal knowledge graph with a vector fast path, and answers queries with
merged, reranked, cited results.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}
