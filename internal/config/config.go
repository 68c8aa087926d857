package config

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	clierr "github.com/geometry-infra/preptools/internal/errors"
	"github.com/geometry-infra/preptools/internal/units"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

const (
	DefaultURL     = "http://127.0.0.1:9000/api/v3"
	DefaultNID     = 3
	DefaultTimeout = 10 * time.Second
)

// GlobalFlags carries command-line overrides. Nil pointers mean the flag
// was not given and the underlying value stays in effect.
type GlobalFlags struct {
	ConfigPath     string
	URL            *string
	NID            *string
	Keystore       *string
	Password       *string
	StepLimit      *string
	Yes            bool
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	LogLevel       string
	LogJSON        bool
}

// Settings is the effective configuration of one invocation.
type Settings struct {
	URL            string
	NID            int64
	KeystorePath   string
	Password       string
	Yes            bool
	StepLimit      *big.Int
	Timeout        time.Duration
	LogLevel       string
	LogJSON        bool
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	ConfigPath     string
	// Extra holds config file keys that preptools does not interpret.
	Extra map[string]any
}

type fileConfig struct {
	URL       string `yaml:"url"`
	NID       any    `yaml:"nid"`
	Keystore  string `yaml:"keystore"`
	Password  string `yaml:"password"`
	StepLimit any    `yaml:"stepLimit"`
	Timeout   string `yaml:"timeout"`
	LogLevel  string `yaml:"logLevel"`
	Output    string `yaml:"output"`
}

var knownFileKeys = map[string]bool{
	"url": true, "nid": true, "keystore": true, "password": true,
	"stepLimit": true, "timeout": true, "logLevel": true, "output": true,
}

type envConfig struct {
	URL       string        `env:"PREPTOOLS_URL"`
	NID       string        `env:"PREPTOOLS_NID"`
	Keystore  string        `env:"PREPTOOLS_KEYSTORE"`
	Password  string        `env:"PREPTOOLS_PASSWORD"`
	Config    string        `env:"PREPTOOLS_CONFIG"`
	StepLimit string        `env:"PREPTOOLS_STEP_LIMIT"`
	Timeout   time.Duration `env:"PREPTOOLS_TIMEOUT"`
	LogLevel  string        `env:"PREPTOOLS_LOG_LEVEL"`
	Output    string        `env:"PREPTOOLS_OUTPUT"`
}

// DefaultSettings returns the built-in defaults: the local node on nid 3.
func DefaultSettings() Settings {
	return Settings{
		URL:        DefaultURL,
		NID:        DefaultNID,
		Timeout:    DefaultTimeout,
		LogLevel:   "warn",
		OutputMode: "json",
	}
}

// Load overlays defaults, the config file, the environment and flags.
func Load(flags GlobalFlags) (Settings, error) {
	return LoadWithDefaults(DefaultSettings(), flags)
}

// LoadWithDefaults is Load with caller-supplied defaults.
func LoadWithDefaults(defaults Settings, flags GlobalFlags) (Settings, error) {
	settings := defaults
	settings.Extra = map[string]any{}
	if defaults.StepLimit != nil {
		settings.StepLimit = new(big.Int).Set(defaults.StepLimit)
	}

	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		return Settings{}, clierr.Wrap(clierr.CodeConfig, "parse environment", err)
	}

	cfgPath, explicit, err := resolveConfigPath(flags.ConfigPath, envCfg.Config)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, explicit, &settings); err != nil {
		return Settings{}, err
	}
	if err := applyEnv(envCfg, &settings); err != nil {
		return Settings{}, err
	}
	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return Settings{}, clierr.New(clierr.CodeUsage, "output must be json or plain")
	}
	if strings.TrimSpace(settings.URL) == "" {
		return Settings{}, clierr.New(clierr.CodeConfig, "node url is not configured")
	}
	if settings.NID <= 0 {
		return Settings{}, clierr.New(clierr.CodeConfig, "network id is not configured")
	}
	if settings.KeystorePath != "" {
		expanded, err := homedir.Expand(settings.KeystorePath)
		if err != nil {
			return Settings{}, clierr.Wrap(clierr.CodeConfig, "expand keystore path", err)
		}
		settings.KeystorePath = expanded
	}
	return settings, nil
}

// resolveConfigPath picks the flag, then PREPTOOLS_CONFIG, then the
// per-user default file. Only the last one may be absent.
func resolveConfigPath(flagPath, envPath string) (string, bool, error) {
	for _, candidate := range []string{flagPath, envPath} {
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		expanded, err := homedir.Expand(candidate)
		if err != nil {
			return "", false, clierr.Wrap(clierr.CodeConfig, "expand config path", err)
		}
		return expanded, true, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := homedir.Dir()
		if err != nil {
			// No home directory: run on defaults alone.
			return "", false, nil
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "preptools", "config.json"), false, nil
}

func applyFileConfig(path string, explicit bool, settings *Settings) error {
	if path == "" {
		return nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return clierr.Wrap(clierr.CodeConfig, "read config", err)
	}
	settings.ConfigPath = path

	var raw map[string]any
	if err := yaml.Unmarshal(buf, &raw); err != nil {
		return clierr.Wrap(clierr.CodeConfig, "parse config "+path, err)
	}
	if raw == nil {
		return clierr.New(clierr.CodeConfig, fmt.Sprintf("config %s must be an object", path))
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return clierr.Wrap(clierr.CodeConfig, "parse config "+path, err)
	}

	if cfg.URL != "" {
		settings.URL = cfg.URL
	}
	if cfg.NID != nil {
		nid, err := parseNIDValue(cfg.NID)
		if err != nil {
			return clierr.Wrap(clierr.CodeConfig, "config nid", err)
		}
		settings.NID = nid
	}
	if cfg.Keystore != "" {
		settings.KeystorePath = cfg.Keystore
	}
	if cfg.Password != "" {
		settings.Password = cfg.Password
	}
	if cfg.StepLimit != nil {
		limit, err := parseStepLimitValue(cfg.StepLimit)
		if err != nil {
			return clierr.Wrap(clierr.CodeConfig, "config stepLimit", err)
		}
		settings.StepLimit = limit
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return clierr.Wrap(clierr.CodeConfig, "config timeout", err)
		}
		settings.Timeout = d
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = strings.ToLower(cfg.LogLevel)
	}
	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	for k, v := range raw {
		if !knownFileKeys[k] {
			settings.Extra[k] = v
		}
	}
	return nil
}

func applyEnv(cfg envConfig, settings *Settings) error {
	if cfg.URL != "" {
		settings.URL = cfg.URL
	}
	if cfg.NID != "" {
		nid, err := units.ParseNID(cfg.NID)
		if err != nil {
			return clierr.Wrap(clierr.CodeConfig, "PREPTOOLS_NID", err)
		}
		settings.NID = nid
	}
	if cfg.Keystore != "" {
		settings.KeystorePath = cfg.Keystore
	}
	if cfg.Password != "" {
		settings.Password = cfg.Password
	}
	if cfg.StepLimit != "" {
		limit, err := parseStepLimit(cfg.StepLimit)
		if err != nil {
			return clierr.Wrap(clierr.CodeConfig, "PREPTOOLS_STEP_LIMIT", err)
		}
		settings.StepLimit = limit
	}
	if cfg.Timeout > 0 {
		settings.Timeout = cfg.Timeout
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = strings.ToLower(cfg.LogLevel)
	}
	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return clierr.New(clierr.CodeUsage, "cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly
	if flags.URL != nil {
		settings.URL = *flags.URL
	}
	if flags.NID != nil {
		nid, err := units.ParseNID(*flags.NID)
		if err != nil {
			return clierr.Wrap(clierr.CodeUsage, "parse --nid", err)
		}
		settings.NID = nid
	}
	if flags.Keystore != nil {
		settings.KeystorePath = *flags.Keystore
	}
	if flags.Password != nil {
		settings.Password = *flags.Password
	}
	if flags.StepLimit != nil {
		limit, err := parseStepLimit(*flags.StepLimit)
		if err != nil {
			return clierr.Wrap(clierr.CodeUsage, "parse --step-limit", err)
		}
		settings.StepLimit = limit
	}
	if flags.Yes {
		settings.Yes = true
	}
	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return clierr.Wrap(clierr.CodeUsage, "parse --timeout", err)
		}
		settings.Timeout = d
	}
	if flags.LogLevel != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}
	if flags.LogJSON {
		settings.LogJSON = true
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// parseNIDValue accepts a YAML/JSON integer or a decimal/hex string.
func parseNIDValue(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return positive(int64(t))
	case int64:
		return positive(t)
	case uint64:
		if t > math.MaxInt64 {
			return 0, fmt.Errorf("nid %d out of range", t)
		}
		return positive(int64(t))
	case float64:
		if t != math.Trunc(t) || t > math.MaxInt64 {
			return 0, fmt.Errorf("nid must be an integer, got %v", t)
		}
		return positive(int64(t))
	case string:
		return units.ParseNID(t)
	default:
		return 0, fmt.Errorf("nid must be a number or string, got %T", v)
	}
}

func positive(n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("nid must be positive, got %d", n)
	}
	return n, nil
}

func parseStepLimitValue(v any) (*big.Int, error) {
	switch t := v.(type) {
	case int:
		return parseStepLimit(fmt.Sprint(t))
	case int64:
		return parseStepLimit(fmt.Sprint(t))
	case uint64:
		return parseStepLimit(fmt.Sprint(t))
	case string:
		return parseStepLimit(t)
	default:
		return nil, fmt.Errorf("stepLimit must be a number or string, got %T", v)
	}
}

func parseStepLimit(raw string) (*big.Int, error) {
	limit, err := units.ParseQuantity(raw)
	if err != nil {
		return nil, err
	}
	if limit.Sign() == 0 {
		return nil, errors.New("step limit must be positive")
	}
	return limit, nil
}
