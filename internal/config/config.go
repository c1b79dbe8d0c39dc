package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// FileName is the settings file looked up in the working directory when no
// explicit path is given.
const FileName = "config.ini"

type Paths struct {
	ConfigDir      string `mapstructure:"config_dir"`
	LogsDir        string `mapstructure:"logs_dir"`
	OutputDir      string `mapstructure:"output_dir"`
	PlanConfigFile string `mapstructure:"plan_config_file"`
}

type Logging struct {
	// TimestampFormat and AnalysisTimestampFormat are Go time layouts.
	TimestampFormat           string `mapstructure:"timestamp_format"`
	AnalysisTimestampFormat   string `mapstructure:"analysis_timestamp_format"`
	LogLevel                  string `mapstructure:"log_level"`
	AnalysisLogFile           string `mapstructure:"analysis_log_file"`
	SinglePlanAnalysisLogFile string `mapstructure:"single_plan_analysis_log_file"`
	ExportLogFile             string `mapstructure:"export_log_file"`
	SinglePlanExportLogFile   string `mapstructure:"single_plan_export_log_file"`
}

type Files struct {
	JSONOutputFile           string `mapstructure:"json_output_file"`
	JSONSinglePlanOutputFile string `mapstructure:"json_single_plan_output_file"`
	ExcelOutputFile          string `mapstructure:"excel_output_file"`
}

type Excel struct {
	MaxSheetNameLength int    `mapstructure:"max_sheet_name_length"`
	HeaderColor        string `mapstructure:"header_color"`
	HeaderFontColor    string `mapstructure:"header_font_color"`
	HeaderFontSize     int    `mapstructure:"header_font_size"`
}

type Store struct {
	// DSN selects the results store; empty disables it.
	DSN string `mapstructure:"dsn"`
}

type Config struct {
	Paths   Paths   `mapstructure:"paths"`
	Logging Logging `mapstructure:"logging"`
	Files   Files   `mapstructure:"files"`
	Excel   Excel   `mapstructure:"excel"`
	Store   Store   `mapstructure:"store"`

	// BaseDir anchors relative paths. It is the directory of the loaded
	// file, or the working directory when running on defaults.
	BaseDir string `mapstructure:"-"`
	// Source is the settings file that was read, "" for defaults.
	Source string `mapstructure:"-"`
}

var defaults = map[string]any{
	"paths.config_dir":       "Config",
	"paths.logs_dir":         "Logs",
	"paths.output_dir":       "Output",
	"paths.plan_config_file": "plans.json",

	"logging.timestamp_format":              "20060102_150405",
	"logging.analysis_timestamp_format":     "2006-01-02 15:04:05",
	"logging.log_level":                     "INFO",
	"logging.analysis_log_file":             "execution_plan_analysis",
	"logging.single_plan_analysis_log_file": "single_plan_analysis",
	"logging.export_log_file":               "excel_export",
	"logging.single_plan_export_log_file":   "single_plan_excel_export",

	"files.json_output_file":             "execution_plan_comparison.json",
	"files.json_single_plan_output_file": "single_plan_analysis.json",
	"files.excel_output_file":            "execution_plan_comparison.xlsx",

	"excel.max_sheet_name_length": 31,
	"excel.header_color":          "366092",
	"excel.header_font_color":     "FFFFFF",
	"excel.header_font_size":      11,

	"store.dsn": "",
}

// Load reads the INI settings file at path. With an empty path it looks for
// config.ini in the working directory and falls back to defaults when none
// exists. Keys missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("ini")
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", orCwd(path), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if used := v.ConfigFileUsed(); used != "" {
		abs, err := filepath.Abs(used)
		if err != nil {
			return nil, err
		}
		cfg.Source = abs
		cfg.BaseDir = filepath.Dir(abs)
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cfg.BaseDir = wd
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in settings anchored at dir.
func Default(dir string) *Config {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	var cfg Config
	// Decoding a map of known scalar defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	cfg.BaseDir = dir
	return &cfg
}

func (c *Config) validate() error {
	if c.Excel.MaxSheetNameLength <= 0 {
		return fmt.Errorf("[Excel] max_sheet_name_length must be positive, got %d", c.Excel.MaxSheetNameLength)
	}
	if c.Logging.AnalysisTimestampFormat == "" || c.Logging.TimestampFormat == "" {
		return fmt.Errorf("[Logging] timestamp formats must not be empty")
	}
	return nil
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// PlanSetPath is the plan-set JSON file named by [Paths].
func (c *Config) PlanSetPath() string {
	return c.resolve(filepath.Join(c.Paths.ConfigDir, c.Paths.PlanConfigFile))
}

func (c *Config) LogsDir() string {
	return c.resolve(c.Paths.LogsDir)
}

func (c *Config) OutputDir() string {
	return c.resolve(c.Paths.OutputDir)
}

// OutputPath places a [Files] file name in the output directory.
func (c *Config) OutputPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.OutputDir(), name)
}

func orCwd(path string) string {
	if path == "" {
		return FileName
	}
	return path
}
