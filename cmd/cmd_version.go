package cmd

import (
	"fmt"

	"github.com/Meeds-io/deeds-dapp-sub003/core/constants"
	"github.com/spf13/cobra"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show deeds-dapp version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), constants.Version)
			return nil
		},
	}
}
