package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/pulse/internal/engine"
	"github.com/rcliao/pulse/internal/tui"
)

func init() {
	cmd := &cobra.Command{
		Use:   "take <sentiment|feedback>",
		Short: "Answer a survey interactively",
		Args:  cobra.ExactArgs(1),
		Run:   runTake,
	}

	RootCmd.AddCommand(cmd)
}

func runTake(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	cfg := loadConfig()
	log, closer := openLogger(cfg)
	defer closer.Close()

	p := loadProfile(args[0], cfg, log)

	s := openStore(cfg)
	defer s.Close()

	ec := p.EngineConfig(cfg, s, now(), log)
	ctrl, err := engine.New(ec)
	if err != nil {
		exitErr("start survey", err)
	}
	defer ctrl.Close()

	go func() {
		if err := ctrl.Start(ctx); err != nil {
			log.Error("bootstrap", "instance", ec.InstanceKey, "error", err)
		}
	}()

	final, err := tui.Run(ctx, ctrl, p.Title)
	if err != nil {
		exitErr("run", err)
	}

	out := cmd.OutOrStdout()
	switch final.Phase {
	case engine.PhaseSealed, engine.PhaseAlreadyComplete:
		fmt.Fprintln(out, "Thank you! Your response has been recorded.")
	case engine.PhaseActive:
		fmt.Fprintf(out, "Progress saved (%d/%d answered). Run `pulse take %s` to continue.\n", final.Answered, final.Total(), p.Kind)
	case engine.PhaseCatalogUnavailable:
		fmt.Fprintln(out, final.Error)
	}
}
