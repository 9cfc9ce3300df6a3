// Package cli implements the pulse CLI commands.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rcliao/pulse/internal/config"
	"github.com/rcliao/pulse/internal/logging"
	"github.com/rcliao/pulse/internal/profile"
	"github.com/rcliao/pulse/internal/store"
)

var (
	configPath string
	dbPath     string
	atFlag     string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Take employee pulse surveys from the terminal",
	Long:  "Answer the monthly sentiment check-in and the HR feedback survey. Progress is saved locally after every answer, so you can quit and pick up where you left off.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ~/.pulse/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $PULSE_DB or ~/.pulse/pulse.db)")
	RootCmd.PersistentFlags().StringVar(&atFlag, "at", "", "Pretend today is this date (YYYY-MM-DD) when picking the survey instance")
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		cfg.DB = dbPath
	}
	return cfg
}

func openStore(cfg *config.Config) *store.SQLiteStore {
	s, err := store.NewSQLiteStore(cfg.DB)
	if err != nil {
		exitErr("open store", err)
	}
	return s
}

func openLogger(cfg *config.Config) (*slog.Logger, io.Closer) {
	log, closer, err := logging.Open(cfg.Log)
	if err != nil {
		exitErr("open log", err)
	}
	return log, closer
}

func loadProfile(name string, cfg *config.Config, log *slog.Logger) profile.Profile {
	kind, err := profile.Parse(name)
	if err != nil {
		exitErr("survey", err)
	}
	p, err := profile.New(kind, cfg, log)
	if err != nil {
		exitErr("survey", err)
	}
	return p
}

func now() time.Time {
	if atFlag == "" {
		return time.Now()
	}
	t, err := time.ParseInLocation("2006-01-02", atFlag, time.Local)
	if err != nil {
		exitErr("parse --at", err)
	}
	return t
}

func printJSON(cmd *cobra.Command, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
