package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/adlio/asanadw/internal/asana"
	"github.com/adlio/asanadw/internal/storage"
	"github.com/adlio/asanadw/internal/warehouse"
)

var rootCmd = &cobra.Command{
	Use:           "asanadw",
	Short:         "Local analytical mirror of your Asana workspace",
	Long: `asanadw maintains a local SQLite mirror of your Asana workspace for
offline queries, full-text search, metrics, and narrative summaries.

Set ASANA_TOKEN to a personal access token, register entities with
'asanadw monitor add', and run 'asanadw sync all'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "database file (default ~/.asanadw/asanadw.db)")

	viper.SetEnvPrefix("ASANADW")
	viper.AutomaticEnv()
	_ = viper.BindEnv("token", "ASANA_TOKEN")
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
}

// openStore opens the database at the configured path.
func openStore() (*storage.DB, error) {
	path := viper.GetString("db")
	if path == "" {
		var err error
		path, err = storage.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return storage.Open(path)
}

// openWarehouse opens the store and wires the API client. The logger
// writes to a rotating file beside the database.
func openWarehouse() (*warehouse.Warehouse, *storage.DB, error) {
	token := viper.GetString("token")
	if token == "" {
		return nil, nil, fmt.Errorf("%w: ASANA_TOKEN is not set", warehouse.ErrConfig)
	}
	db, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	return warehouse.New(db, asana.NewHTTPClient(token), newLogger(db.Path())), db, nil
}

// newLogger builds the file logger used by long-running commands.
// Sync output the user cares about goes to stdout separately.
func newLogger(dbPath string) *log.Logger {
	logPath := filepath.Join(filepath.Dir(dbPath), "asanadw.log")
	w := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     30, // days
	}
	return log.New(w, "", log.LstdFlags)
}

// parseSinceFlag accepts YYYY-MM-DD or a natural-language date such as
// "2 weeks ago".
func parseSinceFlag(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := storage.ParseDateKey(s); err == nil {
		return t, nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, time.Now())
	if err == nil && r != nil {
		t := r.Time.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse date %q", warehouse.ErrConfig, s)
}

// commandContext returns a context cancelled on SIGINT/SIGTERM so sync
// stops at the next batch boundary instead of mid-transaction.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
