package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/trippixn/mediagrab/internal/domain"
)

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	// Start with default config
	config := domain.DefaultConfig()

	// Set up viper
	v := viper.New()
	v.SetConfigType("yaml")

	// If config path is provided, use it
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.mediagrab")
		v.AddConfigPath("/etc/mediagrab")
	}

	// Read environment variables
	v.SetEnvPrefix("MEDIAGRAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults
	}

	// Unmarshal into config struct
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Expand environment variables in paths
	config = expandPaths(config)

	// Validate config
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Staging.BaseDir = expandPath(config.Staging.BaseDir)
	config.Staging.CompletedDir = expandPath(config.Staging.CompletedDir)
	config.Fetch.CookieFile = expandPath(config.Fetch.CookieFile)
	config.History.DatabasePath = expandPath(config.History.DatabasePath)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	path = os.ExpandEnv(path)

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	if strings.Contains(path, "$HOME") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return path
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Staging.BaseDir == "" {
		return fmt.Errorf("staging base directory not configured")
	}

	if config.Staging.CompletedDir == "" {
		return fmt.Errorf("completed directory not configured")
	}

	if config.Limits.SizeCeilingBytes <= 0 {
		return fmt.Errorf("size ceiling must be positive")
	}

	if config.Limits.PerRequestWorkers < 1 {
		return fmt.Errorf("per-request worker limit must be at least 1")
	}

	if config.Limits.GlobalProcessCap < 1 {
		return fmt.Errorf("global process cap must be at least 1")
	}

	if config.Fetch.Retries < 0 {
		return fmt.Errorf("fetch retries cannot be negative")
	}

	if config.Transcode.MaxAttempts < 1 {
		return fmt.Errorf("transcode attempts must be at least 1")
	}

	if len(config.Transcode.QualityLadder) == 0 {
		return fmt.Errorf("quality ladder cannot be empty")
	}

	for i, factor := range config.Transcode.QualityLadder {
		if factor <= 0 || factor > 1 {
			return fmt.Errorf("quality ladder rung %d out of range (0, 1]: %f", i, factor)
		}
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}
