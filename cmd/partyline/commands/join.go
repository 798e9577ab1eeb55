package commands

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"partyline/cmd/partyline/tui"
	"partyline/internal/node"
)

// -------------------------------------------------------- Join -------------------------------------------------------

func Join() *cobra.Command {
	joinCmd := &cobra.Command{
		Use:   "join [address]",
		Short: "Join a hosted session",
		Long:  "The join command connects to a session. Given no address, the local network is searched for one.",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("username", cmd.Flags().Lookup("username")); err != nil {
				return fmt.Errorf("binding username flag: %w", err)
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
			var addr string
			if len(args) > 0 {
				addr = args[0]
				host, _, err := net.SplitHostPort(addr)
				if err != nil {
					return fmt.Errorf("%w: (%s) is not a host:port address", ErrInvalidAddress, addr)
				}
				if err := validateAddress(host); err != nil {
					return fmt.Errorf("%w: (%s) is not a valid host address", err, addr)
				}
			}

			log, err := setupLoggingFromViper("join")
			if err != nil {
				return err
			}
			defer log.Sync()

			n, err := node.Join(addr, nodeConfigFromViper(log))
			if err != nil {
				return fmt.Errorf("joining session: %w", err)
			}
			defer n.Stop()
			return tui.Run(n)
		},
	}
	joinCmd.Flags().StringP("username", "u", "", usernameFlagDesc)
	joinCmd.Flags().StringP("downloads", "d", "", downloadsFlagDesc)
	joinCmd.Flags().Bool("discovery", true, discoveryFlagDesc)
	return joinCmd
}
