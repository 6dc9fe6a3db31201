package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/ggonzalez94/defi-agent/internal/logging"
	"github.com/ggonzalez94/defi-agent/internal/registry"
)

const envPrefix = "DEFI_AGENT_"

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	Markdown       bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Strict         bool
	Timeout        string
	MaxStale       string
	NoStale        bool
	NoCache        bool
	DefaultChain   string
	LogLevel       string
	LLM            bool
}

// Settings is the resolved configuration. Fields tagged with env are read
// from DEFI_AGENT_* variables after the config file is applied.
type Settings struct {
	OutputMode     string `env:"OUTPUT"`
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	Strict         bool          `env:"STRICT"`
	Timeout        time.Duration `env:"TIMEOUT"`
	MaxStale       time.Duration `env:"MAX_STALE"`
	NoStale        bool          `env:"NO_STALE"`
	CacheEnabled   bool          `env:"CACHE_ENABLED"`
	CachePath      string        `env:"CACHE_PATH"`
	CacheLockPath  string        `env:"CACHE_LOCK_PATH"`
	DefaultChain   string        `env:"DEFAULT_CHAIN"`

	DefiLlamaAPIURL    string        `env:"DEFILLAMA_URL"`
	DefiLlamaYieldsURL string        `env:"DEFILLAMA_YIELDS_URL"`
	PythHermesURL      string        `env:"PYTH_HERMES_URL"`
	PriceCacheTTL      time.Duration `env:"PRICE_TTL"`
	AptosNetwork       string        `env:"APTOS_NETWORK"`
	AptosFullnodeURL   string        `env:"APTOS_FULLNODE_URL"`
	SignerURL          string        `env:"SIGNER_URL"`
	SignerSender       string        `env:"SIGNER_SENDER"`
	SignerToken        string        `env:"SIGNER_TOKEN"`

	LLMEnabled       bool   `env:"LLM"`
	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel   string `env:"ANTHROPIC_MODEL"`
	AnthropicBaseURL string `env:"ANTHROPIC_BASE_URL"`

	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`
}

// Logging returns the logger settings.
func (s Settings) Logging() logging.Config {
	return logging.Config{Level: s.LogLevel, Format: s.LogFormat}
}

// SignerConfigured reports whether transactions can be signed and submitted.
func (s Settings) SignerConfigured() bool {
	return strings.TrimSpace(s.SignerURL) != "" && strings.TrimSpace(s.SignerSender) != ""
}

type secretConfig struct {
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
}

func (c secretConfig) resolve() string {
	if c.APIKeyEnv != "" {
		return os.Getenv(c.APIKeyEnv)
	}
	return c.APIKey
}

type fileConfig struct {
	Output       string `yaml:"output"`
	Strict       *bool  `yaml:"strict"`
	Timeout      string `yaml:"timeout"`
	DefaultChain string `yaml:"default_chain"`
	Cache        struct {
		Enabled  *bool  `yaml:"enabled"`
		MaxStale string `yaml:"max_stale"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"cache"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Providers struct {
		DefiLlama struct {
			APIURL    string `yaml:"api_url"`
			YieldsURL string `yaml:"yields_url"`
		} `yaml:"defillama"`
		Pyth struct {
			HermesURL string `yaml:"hermes_url"`
			PriceTTL  string `yaml:"price_ttl"`
		} `yaml:"pyth"`
		Aptos struct {
			Network     string `yaml:"network"`
			FullnodeURL string `yaml:"fullnode_url"`
		} `yaml:"aptos"`
		Signer struct {
			URL    string       `yaml:"url"`
			Sender string       `yaml:"sender"`
			Token  secretConfig `yaml:"token"`
		} `yaml:"signer"`
		Anthropic struct {
			Key     secretConfig `yaml:",inline"`
			Enabled *bool        `yaml:"enabled"`
			Model   string       `yaml:"model"`
			BaseURL string       `yaml:"base_url"`
		} `yaml:"anthropic"`
	} `yaml:"providers"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.MaxStale < 0 {
		settings.MaxStale = 5 * time.Minute
	}
	if settings.PriceCacheTTL <= 0 {
		settings.PriceCacheTTL = 5 * time.Minute
	}
	if err := validateEndpoints(settings); err != nil {
		return Settings{}, err
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:         "json",
		Timeout:            10 * time.Second,
		MaxStale:           5 * time.Minute,
		CacheEnabled:       true,
		CachePath:          cachePath,
		CacheLockPath:      lockPath,
		DefaultChain:       registry.DefaultChain,
		DefiLlamaAPIURL:    registry.DefiLlamaAPIBase,
		DefiLlamaYieldsURL: registry.DefiLlamaYieldsBase,
		PythHermesURL:      registry.PythHermesBase,
		PriceCacheTTL:      5 * time.Minute,
		AptosNetwork:       "mainnet",
		LogLevel:           logging.DefaultConfig().Level,
		LogFormat:          logging.DefaultConfig().Format,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "defi-agent", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "defi-agent")
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

func parseDuration(field, v string, dst *time.Duration) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config %s: %w", field, err)
	}
	*dst = d
	return nil
}

func setIf(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Strict != nil {
		settings.Strict = *cfg.Strict
	}
	if err := parseDuration("timeout", cfg.Timeout, &settings.Timeout); err != nil {
		return err
	}
	setIf(&settings.DefaultChain, cfg.DefaultChain)
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if err := parseDuration("cache.max_stale", cfg.Cache.MaxStale, &settings.MaxStale); err != nil {
		return err
	}
	setIf(&settings.CachePath, cfg.Cache.Path)
	setIf(&settings.CacheLockPath, cfg.Cache.LockPath)
	setIf(&settings.LogLevel, cfg.Log.Level)
	setIf(&settings.LogFormat, cfg.Log.Format)

	p := cfg.Providers
	setIf(&settings.DefiLlamaAPIURL, p.DefiLlama.APIURL)
	setIf(&settings.DefiLlamaYieldsURL, p.DefiLlama.YieldsURL)
	setIf(&settings.PythHermesURL, p.Pyth.HermesURL)
	if err := parseDuration("providers.pyth.price_ttl", p.Pyth.PriceTTL, &settings.PriceCacheTTL); err != nil {
		return err
	}
	setIf(&settings.AptosNetwork, p.Aptos.Network)
	setIf(&settings.AptosFullnodeURL, p.Aptos.FullnodeURL)
	setIf(&settings.SignerURL, p.Signer.URL)
	setIf(&settings.SignerSender, p.Signer.Sender)
	setIf(&settings.SignerToken, p.Signer.Token.resolve())
	if p.Anthropic.Enabled != nil {
		settings.LLMEnabled = *p.Anthropic.Enabled
	}
	setIf(&settings.AnthropicAPIKey, p.Anthropic.Key.resolve())
	setIf(&settings.AnthropicModel, p.Anthropic.Model)
	setIf(&settings.AnthropicBaseURL, p.Anthropic.BaseURL)

	return nil
}

func applyEnv(settings *Settings) error {
	if err := env.ParseWithOptions(settings, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	settings.OutputMode = strings.ToLower(strings.TrimSpace(settings.OutputMode))
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if f := strings.TrimSpace(part); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	modes := 0
	for _, set := range []bool{flags.JSON, flags.Plain, flags.Markdown} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		return fmt.Errorf("use only one of --json, --plain and --markdown")
	}
	switch {
	case flags.JSON:
		settings.OutputMode = "json"
	case flags.Plain:
		settings.OutputMode = "plain"
	case flags.Markdown:
		settings.OutputMode = "markdown"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}

	if flags.Strict {
		settings.Strict = true
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.MaxStale != "" {
		d, err := time.ParseDuration(flags.MaxStale)
		if err != nil {
			return fmt.Errorf("parse --max-stale: %w", err)
		}
		settings.MaxStale = d
	}
	if flags.NoStale {
		settings.NoStale = true
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	setIf(&settings.DefaultChain, flags.DefaultChain)
	setIf(&settings.LogLevel, flags.LogLevel)
	if flags.LLM {
		settings.LLMEnabled = true
	}

	switch settings.OutputMode {
	case "json", "plain", "markdown":
	default:
		return fmt.Errorf("output must be json, plain or markdown")
	}

	return nil
}

func validateEndpoints(settings Settings) error {
	endpoints := []struct {
		name  string
		value string
	}{
		{"defillama api url", settings.DefiLlamaAPIURL},
		{"defillama yields url", settings.DefiLlamaYieldsURL},
		{"pyth hermes url", settings.PythHermesURL},
		{"aptos fullnode url", settings.AptosFullnodeURL},
		{"signer url", settings.SignerURL},
		{"anthropic base url", settings.AnthropicBaseURL},
	}
	for _, e := range endpoints {
		if strings.TrimSpace(e.value) == "" {
			continue
		}
		if !registry.IsAllowedBaseURL(e.value) {
			return fmt.Errorf("%s %q must use https (plain http is allowed only for localhost)", e.name, e.value)
		}
	}
	return nil
}
