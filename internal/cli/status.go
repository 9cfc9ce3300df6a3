package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/pulse/internal/model"
	"github.com/rcliao/pulse/internal/session"
	"github.com/rcliao/pulse/internal/submission"
)

type statusOutput struct {
	Survey      string                 `json:"survey"`
	Identity    string                 `json:"identity"`
	InstanceKey string                 `json:"instance_key"`
	Completion  model.CompletionRecord `json:"completion"`
	Saved       *savedSummary          `json:"saved,omitempty"`
}

type savedSummary struct {
	Answered  int       `json:"answered"`
	CurrentID string    `json:"current_id,omitempty"`
	Sealed    bool      `json:"sealed,omitempty"`
	AttemptID string    `json:"attempt_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "status <sentiment|feedback>",
		Short: "Show whether a survey is complete and what progress is saved",
		Args:  cobra.ExactArgs(1),
		Run:   runStatus,
	}

	RootCmd.AddCommand(cmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	cfg := loadConfig()
	log, closer := openLogger(cfg)
	defer closer.Close()

	p := loadProfile(args[0], cfg, log)

	s := openStore(cfg)
	defer s.Close()

	instance := p.Instance(now())
	repo := session.NewRepository(s, p.Identity, log)
	coord := submission.New(submission.Params{
		Remote:   p.Remote,
		Ledger:   repo,
		Identity: p.Identity,
		Instance: instance,
		Logger:   log,
	})

	out := statusOutput{
		Survey:      string(p.Kind),
		Identity:    p.Identity,
		InstanceKey: instance,
		Completion:  coord.CheckRemoteStatus(ctx),
	}
	if st, ok := repo.Load(ctx, instance); ok {
		out.Saved = &savedSummary{
			Answered:  len(st.Answers),
			CurrentID: st.CurrentID,
			Sealed:    st.Sealed,
			AttemptID: st.AttemptID,
			UpdatedAt: st.UpdatedAt,
		}
	}
	printJSON(cmd, out)
}
