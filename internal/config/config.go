// Package config loads the server and CLI settings from
// .eiffel-lsp/settings.toml and the process environment.
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"eiffel-lsp/internal/paths"
)

// CurrentVersion is the settings schema version.
const CurrentVersion = 1

// EnvPrefix prefixes environment overrides, e.g. EIFFEL_LSP_REPAIR_MAXATTEMPTS.
const EnvPrefix = "EIFFEL_LSP"

// Config represents the complete settings file.
type Config struct {
	Version int `toml:"version" mapstructure:"version" validate:"eq=1"`

	LLM       LLMConfig       `toml:"llm" mapstructure:"llm"`
	Verifier  VerifierConfig  `toml:"verifier" mapstructure:"verifier"`
	Repair    RepairConfig    `toml:"repair" mapstructure:"repair"`
	Workspace WorkspaceConfig `toml:"workspace" mapstructure:"workspace"`
	Parser    ParserConfig    `toml:"parser" mapstructure:"parser"`
	Jobs      JobsConfig      `toml:"jobs" mapstructure:"jobs"`
	Logging   LoggingConfig   `toml:"logging" mapstructure:"logging"`
	Prompts   PromptsConfig   `toml:"prompts" mapstructure:"prompts"`
	Metrics   MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
}

// LLMConfig selects and tunes the model provider.
type LLMConfig struct {
	Provider          string  `toml:"provider" mapstructure:"provider" validate:"oneof=gemini openai"`
	Model             string  `toml:"model" mapstructure:"model" validate:"required"`
	Mode              string  `toml:"mode" mapstructure:"mode" validate:"omitempty,oneof=generateContent streamGenerateContent"`
	Temperature       float64 `toml:"temperature" mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens         int     `toml:"maxTokens" mapstructure:"maxTokens" validate:"gte=0"`
	APIKeyEnv         string  `toml:"apiKeyEnv" mapstructure:"apiKeyEnv" validate:"required"`
	TimeoutSeconds    int     `toml:"timeoutSeconds" mapstructure:"timeoutSeconds" validate:"gt=0"`
	MaxRetries        int     `toml:"maxRetries" mapstructure:"maxRetries" validate:"gte=0,lte=10"`
	RequestsPerMinute int     `toml:"requestsPerMinute" mapstructure:"requestsPerMinute" validate:"gte=0"`
	BaseURL           string  `toml:"baseURL" mapstructure:"baseURL" validate:"omitempty,url"`
}

// Timeout is the per-call LLM timeout.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// KeyVariable is the environment variable holding the API key. The openai
// provider reads OPENAI_API_KEY unless apiKeyEnv was changed.
func (c LLMConfig) KeyVariable() string {
	if c.Provider == "openai" && c.APIKeyEnv == DefaultAPIKeyEnv {
		return OpenAIAPIKeyEnv
	}
	return c.APIKeyEnv
}

// VerifierConfig locates and classifies the verifier.
type VerifierConfig struct {
	CommandEnv     string `toml:"commandEnv" mapstructure:"commandEnv" validate:"required"`
	TimeoutSeconds int    `toml:"timeoutSeconds" mapstructure:"timeoutSeconds" validate:"gt=0"`
	SuccessMarker  string `toml:"successMarker" mapstructure:"successMarker" validate:"regexp"`
}

// Timeout is the per-run verifier timeout.
func (c VerifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RepairConfig bounds the repair loop.
type RepairConfig struct {
	MaxAttempts int `toml:"maxAttempts" mapstructure:"maxAttempts" validate:"gte=1,lte=100"`
}

// WorkspaceConfig tunes loading and watching.
type WorkspaceConfig struct {
	Parallelism int      `toml:"parallelism" mapstructure:"parallelism" validate:"gte=1,lte=64"`
	IgnoreFiles []string `toml:"ignoreFiles" mapstructure:"ignoreFiles"`
	Watch       bool     `toml:"watch" mapstructure:"watch"`
	DebounceMs  int      `toml:"debounceMs" mapstructure:"debounceMs" validate:"gte=0,lte=60000"`
}

// Debounce is the watcher batching delay.
func (c WorkspaceConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// ParserConfig points at the grammar library.
type ParserConfig struct {
	GrammarLibrary string `toml:"grammarLibrary" mapstructure:"grammarLibrary"`
}

// JobsConfig configures the repair job store.
type JobsConfig struct {
	DBPath  string `toml:"dbPath" mapstructure:"dbPath"`
	Workers int    `toml:"workers" mapstructure:"workers" validate:"gte=1,lte=16"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `toml:"level" mapstructure:"level" validate:"oneof=debug info warn error silent"`
	Format string `toml:"format" mapstructure:"format" validate:"oneof=auto text json"`
	File   bool   `toml:"file" mapstructure:"file"`
}

// PromptsConfig points at optional template overrides.
type PromptsConfig struct {
	TemplateFile string `toml:"templateFile" mapstructure:"templateFile"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `toml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// Environment variable names read by ReadEnvironment.
const (
	DefaultVerifierEnv = "AP_COMMAND"
	DefaultAPIKeyEnv   = "GOOGLE_API_KEY"
	OpenAIAPIKeyEnv    = "OPENAI_API_KEY"
	GrammarLibraryEnv  = "EIFFEL_TREE_SITTER_LIB"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		LLM: LLMConfig{
			Provider:          "gemini",
			Model:             "gemini-1.5-flash",
			Mode:              "generateContent",
			Temperature:       0.2,
			MaxTokens:         4096,
			APIKeyEnv:         DefaultAPIKeyEnv,
			TimeoutSeconds:    60,
			MaxRetries:        3,
			RequestsPerMinute: 30,
		},
		Verifier: VerifierConfig{
			CommandEnv:     DefaultVerifierEnv,
			TimeoutSeconds: 120,
		},
		Repair: RepairConfig{
			MaxAttempts: 10,
		},
		Workspace: WorkspaceConfig{
			Parallelism: 4,
			IgnoreFiles: []string{".gitignore", ".eiffelignore"},
			Watch:       true,
			DebounceMs:  300,
		},
		Jobs: JobsConfig{
			Workers: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
			File:   true,
		},
	}
}

// LoadConfig loads <root>/.eiffel-lsp/settings.toml, or settingsPath when
// it is set, over the defaults. A missing default file is not an error; a
// missing explicit file is. EIFFEL_LSP_<SECTION>_<KEY> variables override
// both.
func LoadConfig(root, settingsPath string) (*Config, error) {
	cfg, _, err := LoadConfigWithDetails(root, settingsPath)
	return cfg, err
}

// LoadConfigWithDetails is LoadConfig that also reports the file it read,
// or "" when only defaults applied.
func LoadConfigWithDetails(root, settingsPath string) (*Config, string, error) {
	defaults, err := encode(DefaultConfig())
	if err != nil {
		return nil, "", err
	}

	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, "", fmt.Errorf("failed to read defaults: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	used := ""
	path := settingsPath
	if path == "" {
		path = paths.SettingsPath(root)
	}
	if _, statErr := os.Stat(path); statErr == nil {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, "", &ConfigError{Field: "file", Message: fmt.Sprintf("cannot parse %s: %v", path, err)}
		}
		used = path
	} else if settingsPath != "" {
		return nil, "", &ConfigError{Field: "file", Message: "settings file not found: " + settingsPath}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, "", &ConfigError{Field: "file", Message: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, used, err
	}
	return cfg, used, nil
}

// Save writes the configuration as TOML to <root>/.eiffel-lsp/settings.toml.
func (c *Config) Save(root string) error {
	return c.SaveTo(paths.SettingsPath(root))
}

// SaveTo writes the configuration as TOML to path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := encode(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func encode(c *Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := strings.Split(f.Tag.Get("toml"), ",")[0]; name != "" && name != "-" {
			return name
		}
		return f.Name
	})
	_ = v.RegisterValidation("regexp", func(fl validator.FieldLevel) bool {
		_, err := regexp.Compile(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks field constraints and returns the first violation as a
// *ConfigError naming the dotted field path.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return &ConfigError{Field: "", Message: err.Error()}
	}
	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	msg := "failed " + fe.Tag()
	if fe.Param() != "" {
		msg += "=" + fe.Param()
	}
	return &ConfigError{Field: field, Message: fmt.Sprintf("%s (got %v)", msg, fe.Value())}
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}

// Environment holds the variables read once at startup.
type Environment struct {
	VerifierCommand string
	APIKey          string
	GrammarLibrary  string
}

// ReadEnvironment reads the variables cfg names.
func ReadEnvironment(cfg *Config) Environment {
	return Environment{
		VerifierCommand: os.Getenv(cfg.Verifier.CommandEnv),
		APIKey:          os.Getenv(cfg.LLM.KeyVariable()),
		GrammarLibrary:  os.Getenv(GrammarLibraryEnv),
	}
}

// GrammarPath prefers the configured grammar over the environment.
func (e Environment) GrammarPath(cfg *Config) string {
	if cfg.Parser.GrammarLibrary != "" {
		return cfg.Parser.GrammarLibrary
	}
	return e.GrammarLibrary
}
