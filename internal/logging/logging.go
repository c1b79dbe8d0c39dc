package logging

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type lineFormatter struct{}

var levelList = []string{
	"PANIC",
	"FATAL",
	"ERROR",
	"WARN",
	"INFO",
	"DEBUG",
	"TRACE",
}

// Format writes one line per entry:
// 2026-03-23 12:16:42 INFO compare.go:27 Comparing execution plans
func (lineFormatter) Format(entry *log.Entry) ([]byte, error) {
	level := levelList[int(entry.Level)]
	caller := "-"
	if entry.Caller != nil {
		caller = fmt.Sprintf("%s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	msg := fmt.Sprintf("%s %s %s %s\n",
		entry.Time.Format("2006-01-02 15:04:05"), level, caller, entry.Message)
	return []byte(msg), nil
}

// Init sends the standard logger to <dir>/<name>_<timestamp>.log and returns
// the file path. An empty dir discards all log output.
func Init(dir, name, timestampFormat, level string) (string, error) {
	if dir == "" {
		log.SetOutput(io.Discard)
		return "", nil
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", name, time.Now().Format(timestampFormat)))

	// lumberjack creates the directory and file on first write.
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 10,
	}
	log.SetOutput(rotator)
	log.SetLevel(lvl)
	log.SetReportCaller(true)
	log.SetFormatter(lineFormatter{})
	log.Infof("Log file: %s", path)
	return path, nil
}

// Disable discards all log output.
func Disable() {
	log.SetOutput(io.Discard)
}

// ParseLevel accepts logrus level names and the WARNING/CRITICAL spellings
// used in INI settings files.
func ParseLevel(level string) (log.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "":
		return log.InfoLevel, nil
	case "WARNING":
		return log.WarnLevel, nil
	case "CRITICAL":
		return log.FatalLevel, nil
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// Banner logs a heading framed by rule lines.
func Banner(title string) {
	rule := strings.Repeat("=", 80)
	log.Info(rule)
	log.Info(title)
	log.Info(rule)
}
