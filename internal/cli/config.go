package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration (token redacted)",
		Run:   runConfig,
	}

	RootCmd.AddCommand(cmd)
}

func runConfig(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	b, err := cfg.Marshal()
	if err != nil {
		exitErr("marshal config", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(b))
}
