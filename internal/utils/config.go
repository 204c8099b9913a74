package utils

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Logging configuration
	Log LoggerConfig `yaml:"log" mapstructure:"log"`

	// Report rendering
	Output OutputConfig `yaml:"output" mapstructure:"output"`

	// Decoder behaviour
	Decode DecodeConfig `yaml:"decode" mapstructure:"decode"`

	// Structural checks
	Checks ChecksConfig `yaml:"checks" mapstructure:"checks"`
}

// OutputConfig controls how decoded images and check reports are printed
type OutputConfig struct {
	Format     string `yaml:"format" mapstructure:"format" env:"ELF_INSPECTOR_OUTPUT_FORMAT"`
	Color      bool   `yaml:"color" mapstructure:"color" env:"ELF_INSPECTOR_OUTPUT_COLOR"`
	HumanSizes bool   `yaml:"human_sizes" mapstructure:"human_sizes" env:"ELF_INSPECTOR_OUTPUT_HUMAN_SIZES"`
}

// DecodeConfig holds options passed into every decode
type DecodeConfig struct {
	Trace bool `yaml:"trace" mapstructure:"trace" env:"ELF_INSPECTOR_DECODE_TRACE"`
	// Placeholder is a fmt format receiving the raw sh_name offset.
	Placeholder string `yaml:"placeholder" mapstructure:"placeholder" env:"ELF_INSPECTOR_DECODE_PLACEHOLDER"`
}

// ChecksConfig holds structural check configuration
type ChecksConfig struct {
	Skip   []string `yaml:"skip" mapstructure:"skip" env:"ELF_INSPECTOR_CHECKS_SKIP"`
	Strict bool     `yaml:"strict" mapstructure:"strict" env:"ELF_INSPECTOR_CHECKS_STRICT"`
}

var (
	validLogLevels     = []string{"debug", "info", "warn", "warning", "error"}
	validFormats       = []string{"text", "json"}
	errInvalidSettings = errors.New("invalid configuration")
)

// ConfigManager handles configuration loading and management
type ConfigManager struct {
	config *Config
	viper  *viper.Viper
	logger *Logger
}

// NewConfigManager creates a configuration manager reading files from fs.
// A nil fs means the OS filesystem.
func NewConfigManager(fs afero.Fs) *ConfigManager {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	v := viper.New()
	v.SetFs(fs)
	return &ConfigManager{
		config: &Config{},
		viper:  v,
		logger: NewDefaultLogger(),
	}
}

// LoadConfig loads configuration from file and environment variables.
// An explicitly named file must exist; without one the standard locations
// are searched and a missing file is not an error.
func (c *ConfigManager) LoadConfig(configFile string) error {
	c.setDefaults()

	c.viper.SetConfigType("yaml")
	c.viper.SetEnvPrefix("ELF_INSPECTOR")
	c.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.viper.AutomaticEnv()

	if configFile != "" {
		c.viper.SetConfigFile(configFile)
		if err := c.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
		c.logger.WithComponent("config").Debugf("Loaded config from: %s", c.viper.ConfigFileUsed())
	} else {
		c.viper.SetConfigName("config")
		c.viper.AddConfigPath(".")
		c.viper.AddConfigPath("$HOME/.elf-inspector")
		c.viper.AddConfigPath("/etc/elf-inspector")

		if err := c.viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("failed to read config file: %w", err)
			}
			c.logger.WithComponent("config").Debug("No config file found, using defaults and environment variables")
		} else {
			c.logger.WithComponent("config").Debugf("Loaded config from: %s", c.viper.ConfigFileUsed())
		}
	}

	return c.finish()
}

// finish unmarshals, applies env tags and validates.
func (c *ConfigManager) finish() error {
	if err := c.viper.Unmarshal(c.config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.loadFromEnv(); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := c.validateConfig(); err != nil {
		return fmt.Errorf("%w: %v", errInvalidSettings, err)
	}
	c.config.Log.Level = ParseLogLevel(string(c.config.Log.Level))
	c.config.Log.Format = ParseLogFormat(string(c.config.Log.Format))
	c.config.Output.Format = strings.ToLower(c.config.Output.Format)
	return nil
}

// setDefaults sets default configuration values
func (c *ConfigManager) setDefaults() {
	c.viper.SetDefault("log.level", "info")
	c.viper.SetDefault("log.format", "text")

	c.viper.SetDefault("output.format", "text")
	c.viper.SetDefault("output.color", true)
	c.viper.SetDefault("output.human_sizes", false)

	c.viper.SetDefault("decode.trace", false)
	c.viper.SetDefault("decode.placeholder", "<unresolved:%#x>")

	c.viper.SetDefault("checks.skip", []string{})
	c.viper.SetDefault("checks.strict", false)
}

// loadFromEnv loads configuration from environment variables using struct tags
func (c *ConfigManager) loadFromEnv() error {
	return c.loadEnvForStruct(reflect.ValueOf(c.config).Elem())
}

// loadEnvForStruct recursively loads environment variables for a struct
func (c *ConfigManager) loadEnvForStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := c.loadEnvForStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		if envValue, ok := os.LookupEnv(envTag); ok && envValue != "" {
			if err := setFieldFromString(field, envValue); err != nil {
				return fmt.Errorf("failed to set field %s from env %s: %w", fieldType.Name, envTag, err)
			}
		}
	}

	return nil
}

// setFieldFromString sets a field value from a string
func setFieldFromString(field reflect.Value, value string) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value: %s", value)
		}
		field.Set(reflect.ValueOf(duration))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s", value)
		}
		field.SetBool(boolVal)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value: %s", value)
		}
		field.SetInt(intVal)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type())
		}
		values := strings.Split(value, ",")
		for i, v := range values {
			values[i] = strings.TrimSpace(v)
		}
		field.Set(reflect.ValueOf(values))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// validateConfig validates the loaded configuration
func (c *ConfigManager) validateConfig() error {
	if c.config.Log.Level != "" && !contains(validLogLevels, strings.ToLower(string(c.config.Log.Level))) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.config.Log.Level, validLogLevels)
	}
	if c.config.Log.Format != "" && !contains(validFormats, strings.ToLower(string(c.config.Log.Format))) {
		return fmt.Errorf("invalid log format: %s (valid: %v)", c.config.Log.Format, validFormats)
	}
	if !contains(validFormats, strings.ToLower(c.config.Output.Format)) {
		return fmt.Errorf("invalid output format: %s (valid: %v)", c.config.Output.Format, validFormats)
	}
	// The placeholder is formatted with the uint32 sh_name offset.
	if strings.Contains(fmt.Sprintf(c.config.Decode.Placeholder, uint32(0)), "%!") {
		return fmt.Errorf("invalid decode placeholder %q: must contain exactly one integer verb for the name offset", c.config.Decode.Placeholder)
	}
	return nil
}

// GetConfig returns the loaded configuration
func (c *ConfigManager) GetConfig() *Config {
	return c.config
}

// SetLogger sets the logger for the config manager
func (c *ConfigManager) SetLogger(logger *Logger) {
	c.logger = logger
}

// SetConfigValue overrides a configuration key before loading
func (c *ConfigManager) SetConfigValue(key string, value interface{}) {
	c.viper.Set(key, value)
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// LoadConfig loads configuration from configFile, or from the standard
// locations when configFile is empty. Loading is logged to logger, or to a
// default info-level logger when it is nil.
func LoadConfig(fs afero.Fs, configFile string, logger *Logger) (*Config, error) {
	manager := NewConfigManager(fs)
	if logger != nil {
		manager.SetLogger(logger)
	}
	if err := manager.LoadConfig(configFile); err != nil {
		return nil, err
	}
	return manager.GetConfig(), nil
}

// IsConfigError reports whether err came from configuration validation
func IsConfigError(err error) bool {
	return errors.Is(err, errInvalidSettings)
}
