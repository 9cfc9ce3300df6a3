package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/pulse/internal/profile"
)

func init() {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Show which survey instances are current",
		Run:   runInstance,
	}

	cmd.Flags().Int("forms", 0, "Number of rotating sentiment forms (default from config)")

	RootCmd.AddCommand(cmd)
}

func runInstance(cmd *cobra.Command, args []string) {
	forms, _ := cmd.Flags().GetInt("forms")
	if forms == 0 {
		forms = loadConfig().Sentiment.Forms
	}

	t := now()
	printJSON(cmd, map[string]string{
		"date":                    t.Format("2006-01-02"),
		string(profile.Sentiment): profile.SentimentInstanceKey(t, forms),
		string(profile.Feedback):  profile.FeedbackInstanceKey(t),
	})
}
