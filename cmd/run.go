/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jacobarthurs/showplan/internal/config"
	"github.com/jacobarthurs/showplan/internal/logging"
	"github.com/jacobarthurs/showplan/internal/output"
	"github.com/jacobarthurs/showplan/internal/profile"
	"github.com/jacobarthurs/showplan/internal/store"
)

// run is the state shared by the plan commands for one invocation.
type run struct {
	cfg     *config.Config
	started time.Time
}

// startRun loads the settings file and opens the log file that logName
// selects from [Logging].
func startRun(cmd *cobra.Command, logName func(config.Logging) string, title string) (*run, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	r := &run{cfg: cfg, started: time.Now()}
	if err := r.openLog(cmd, logName(cfg.Logging), title); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *run) openLog(cmd *cobra.Command, name, title string) error {
	noLog, _ := cmd.Flags().GetBool("no-log")

	if noLog {
		logging.Disable()
	} else if _, err := logging.Init(r.cfg.LogsDir(), name, r.cfg.Logging.TimestampFormat, r.cfg.Logging.LogLevel); err != nil {
		return err
	}

	logging.Banner(title)
	if r.cfg.Source != "" {
		log.Infof("Settings: %s", r.cfg.Source)
	} else {
		log.Info("Settings: built-in defaults")
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func (r *run) timestamp() string {
	return r.started.Format(r.cfg.Logging.AnalysisTimestampFormat)
}

func (r *run) excelOptions() output.ExcelOptions {
	return output.ExcelOptions{
		MaxSheetNameLength: r.cfg.Excel.MaxSheetNameLength,
		HeaderColor:        r.cfg.Excel.HeaderColor,
		HeaderFontColor:    r.cfg.Excel.HeaderFontColor,
		HeaderFontSize:     r.cfg.Excel.HeaderFontSize,
	}
}

// storeDSN picks the results store: --store, then [Store] dsn, then the
// store recorded on the default profile. "" means no store.
func storeDSN(cmd *cobra.Command, cfg *config.Config) (string, error) {
	if dsn, _ := cmd.Flags().GetString("store"); dsn != "" {
		return dsn, nil
	}
	if cfg.Store.DSN != "" {
		return cfg.Store.DSN, nil
	}

	name, err := profile.GetDefault()
	if err != nil || name == "" {
		return "", err
	}
	p, err := profile.Get(name)
	if err != nil {
		return "", err
	}
	return p.Store, nil
}

// save records a run in the results store when one is configured.
func (r *run) save(cmd *cobra.Command, rec store.Run) error {
	dsn, err := storeDSN(cmd, r.cfg)
	if err != nil {
		return err
	}
	if dsn == "" {
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := store.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer s.Close()

	rec.CreatedAt = r.started
	id, err := s.SaveRun(ctx, rec)
	if err != nil {
		return err
	}
	log.Infof("Saved run %d to results store", id)
	fmt.Fprintf(os.Stderr, "Saved run %d to results store.\n", id)
	return nil
}

func validateFormat(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid output format %q: must be \"text\" or \"json\"", format)
	}
	return nil
}
