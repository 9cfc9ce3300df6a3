package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/pulse/internal/catalog"
)

func init() {
	cmd := &cobra.Command{
		Use:   "catalog <sentiment|feedback>",
		Short: "Print the normalized question catalog for the current instance",
		Args:  cobra.ExactArgs(1),
		Run:   runCatalog,
	}

	cmd.Flags().Bool("ids-only", false, "Only output question ids")

	RootCmd.AddCommand(cmd)
}

func runCatalog(cmd *cobra.Command, args []string) {
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	cfg := loadConfig()
	log, closer := openLogger(cfg)
	defer closer.Close()

	p := loadProfile(args[0], cfg, log)
	instance := p.Instance(now())

	qs, err := catalog.NewLoader(p.Remote, log).Load(cmd.Context(), instance)
	if err != nil {
		exitErr("load catalog", err)
	}

	if idsOnly {
		for _, q := range qs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", q.ID, q.Type)
		}
		return
	}
	printJSON(cmd, qs)
}
