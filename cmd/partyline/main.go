package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"partyline/cmd/partyline/commands"
	"partyline/internal/config"
)

// rootCmd is the top level `partyline` command on which the other subcommands are attached to.
var rootCmd = &cobra.Command{
	Use:   "partyline",
	Short: "Partyline is a local network chat and file sharing tool where one peer hosts and relays for everyone else.",
}

// Entry point of the application.
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Initialization of cobra and viper.
func init() {
	cobra.OnInitialize(initViperConfig)

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug information to a file on the format `.partyline-[command].log` in the current directory")
	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Println("Could not bind verbose flag:", err)
		os.Exit(1)
	}

	// Add cobra subcommands.
	rootCmd.AddCommand(commands.Host())
	rootCmd.AddCommand(commands.Join())
	rootCmd.AddCommand(commands.Config())
}

// initViperConfig initializes the viper config.
// NOTE: The precedence levels of viper are the following: flags -> config file -> defaults.
func initViperConfig() {
	if err := config.Init(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
