// Package config holds the process configuration. Values are read from an
// optional yaml file and from environment variables, the latter taking
// precedence.
package config

import (
	"github.com/ilyakaznacheev/cleanenv"
)

// BrowserConfig defines how the visible browser is started.
type BrowserConfig struct {
	ExecPath    string `yaml:"exec_path" env:"CHROME_PATH" env-default:"/usr/bin/chromium"`
	Display     string `yaml:"display" env:"DISPLAY" env-default:":0"`
	NoSandbox   bool   `yaml:"no_sandbox" env:"CHROME_NO_SANDBOX" env-default:"true"`
	UserDataDir string `yaml:"user_data_dir" env:"CHROME_USER_DATA_DIR"`
	UserAgent   string `yaml:"user_agent" env:"CHROME_USER_AGENT"`
}

// LogConfig selects level and output format of the process logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// SecretsConfig points to an optional ejson file with the importer credentials.
type SecretsConfig struct {
	File       string `yaml:"file" env:"SECRETS_FILE"`
	KeyDir     string `yaml:"key_dir" env:"EJSON_KEYDIR" env-default:"/opt/ejson/keys"`
	PrivateKey string `yaml:"private_key" env:"EJSON_PRIVATE_KEY"`
}

// Config defines the overall structure of the process configuration.
type Config struct {
	Port         int           `yaml:"port" env:"PORT" env-default:"3000"`
	SettingsPath string        `yaml:"settings_path" env:"CONFIG_PATH" env-default:"/config/settings.json"`
	DownloadDir  string        `yaml:"download_dir" env:"DOWNLOAD_DIR" env-default:"/downloads"`
	StaticDir    string        `yaml:"static_dir" env:"STATIC_DIR"`
	RateLimit    int           `yaml:"rate_limit" env:"API_RATE_LIMIT" env-default:"10"`
	Browser      BrowserConfig `yaml:"browser"`
	Log          LogConfig     `yaml:"log"`
	Secrets      SecretsConfig `yaml:"secrets"`
}

// NewConfig reads the configuration. If configPath is empty only the
// environment is considered.
func NewConfig(configPath string) (*Config, error) {
	var config Config
	var err error
	if configPath == "" {
		err = cleanenv.ReadEnv(&config)
	} else {
		err = cleanenv.ReadConfig(configPath, &config)
	}
	if err != nil {
		return nil, err
	}
	return &config, nil
}
