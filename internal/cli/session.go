package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/pulse/internal/remote"
	"github.com/rcliao/pulse/internal/session"
	"github.com/rcliao/pulse/internal/store"
)

type sessionRow struct {
	Namespace string    `json:"namespace"`
	Identity  string    `json:"identity"`
	Instance  string    `json:"instance"`
	UpdatedAt time.Time `json:"updated_at"`
	Answered  *int      `json:"answered,omitempty"`
	Sealed    bool      `json:"sealed,omitempty"`
}

func init() {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or discard locally saved sessions",
	}

	showCmd := &cobra.Command{
		Use:   "show <instance>",
		Short: "Print a saved session",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionShow,
	}
	showCmd.Flags().StringP("identity", "i", "", "Identity (default from config)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions and submitted flags",
		Run:   runSessionList,
	}
	listCmd.Flags().IntP("limit", "l", 50, "Max results")
	listCmd.Flags().Bool("keys-only", false, "Only output identity/instance pairs")
	listCmd.Flags().Bool("submitted", false, "List submitted flags instead of sessions")

	rmCmd := &cobra.Command{
		Use:   "rm <instance>",
		Short: "Discard a saved session",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionRm,
	}
	rmCmd.Flags().StringP("identity", "i", "", "Identity (default from config)")
	rmCmd.Flags().Bool("submitted", false, "Also clear the local submitted flag")

	sessionCmd.AddCommand(showCmd, listCmd, rmCmd)
	RootCmd.AddCommand(sessionCmd)
}

func identityFlag(cmd *cobra.Command, employeeID string) string {
	id, _ := cmd.Flags().GetString("identity")
	if id != "" {
		return id
	}
	if employeeID != "" {
		return employeeID
	}
	return remote.Me
}

func runSessionShow(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	s := openStore(cfg)
	defer s.Close()

	raw, ok, err := s.Get(cmd.Context(), store.SessionKey(identityFlag(cmd, cfg.EmployeeID), args[0]))
	if err != nil {
		exitErr("get", err)
	}
	if !ok {
		exitErr("get", fmt.Errorf("no saved session for %s", args[0]))
	}
	st, err := session.Decode(raw)
	if err != nil {
		exitErr("decode", err)
	}
	printJSON(cmd, st)
}

func runSessionList(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	keysOnly, _ := cmd.Flags().GetBool("keys-only")
	submitted, _ := cmd.Flags().GetBool("submitted")

	ns := store.NamespaceSession
	if submitted {
		ns = store.NamespaceSubmitted
	}

	cfg := loadConfig()
	s := openStore(cfg)
	defer s.Close()

	entries, err := s.List(cmd.Context(), store.ListParams{Prefix: ns + "/", Limit: limit})
	if err != nil {
		exitErr("list", err)
	}

	rows := []sessionRow{}
	for _, e := range entries {
		namespace, identity, instance, ok := store.ParseKey(e.Key)
		if !ok {
			continue
		}
		row := sessionRow{Namespace: namespace, Identity: identity, Instance: instance, UpdatedAt: e.UpdatedAt}
		if namespace == store.NamespaceSession {
			if st, err := session.Decode([]byte(e.Value)); err == nil {
				n := len(st.Answers)
				row.Answered = &n
				row.Sealed = st.Sealed
			}
		}
		rows = append(rows, row)
	}

	if keysOnly {
		var b strings.Builder
		for _, r := range rows {
			fmt.Fprintf(&b, "%s/%s\n", r.Identity, r.Instance)
		}
		fmt.Fprint(cmd.OutOrStdout(), b.String())
		return
	}
	printJSON(cmd, rows)
}

func runSessionRm(cmd *cobra.Command, args []string) {
	clearFlag, _ := cmd.Flags().GetBool("submitted")

	cfg := loadConfig()
	s := openStore(cfg)
	defer s.Close()

	identity := identityFlag(cmd, cfg.EmployeeID)
	repo := session.NewRepository(s, identity, nil)
	if err := repo.Purge(cmd.Context(), args[0]); err != nil {
		exitErr("rm", err)
	}
	if clearFlag {
		if err := repo.ClearSubmitted(cmd.Context(), args[0]); err != nil {
			exitErr("rm", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"identity":%q,"instance":%q}`+"\n", identity, args[0])
}
