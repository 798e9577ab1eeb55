package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"partyline/cmd/partyline/tui"
	"partyline/internal/node"
)

// -------------------------------------------------------- Host -------------------------------------------------------

func Host() *cobra.Command {
	hostCmd := &cobra.Command{
		Use:   "host",
		Short: "Host a session that others can join",
		Long:  "The host command starts a session on this machine. Joining peers chat and share files through it, with every connection subject to your approval.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("port", cmd.Flags().Lookup("port")); err != nil {
				return fmt.Errorf("binding port flag: %w", err)
			}
			if err := viper.BindPFlag("downloads", cmd.Flags().Lookup("downloads")); err != nil {
				return fmt.Errorf("binding downloads flag: %w", err)
			}
			if err := viper.BindPFlag("discovery", cmd.Flags().Lookup("discovery")); err != nil {
				return fmt.Errorf("binding discovery flag: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := setupLoggingFromViper("host")
			if err != nil {
				return err
			}
			defer log.Sync()

			n, err := node.StartHost(nodeConfigFromViper(log))
			if err != nil {
				return fmt.Errorf("starting host: %w", err)
			}
			defer n.Stop()
			return tui.Run(n)
		},
	}
	hostCmd.Flags().IntP("port", "p", 0, portFlagDesc)
	hostCmd.Flags().StringP("downloads", "d", "", downloadsFlagDesc)
	hostCmd.Flags().Bool("discovery", true, discoveryFlagDesc)
	return hostCmd
}
