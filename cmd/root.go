package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Lauiee/AdvisorAI-Api/internal/config"
)

const (
	app = config.App
)

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "advisor-matcher ranks professors for an applicant and scores applicant/professor chats",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is advisor-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}

	// We can't proceed if the config file parsed with error.
	if err := config.Prepare(viper.GetViper(), cfgFile); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}
