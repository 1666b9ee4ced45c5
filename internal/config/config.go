package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the launcher configuration. Precedence: defaults < YAML file < environment.
type Config struct {
	// Model is exported to the server as MODEL_PATH.
	Model string `yaml:"model" env:"VIBEVOICE_MODEL" envDefault:"microsoft/VibeVoice-Realtime-0.5B"`

	Server struct {
		Host        string        `yaml:"host" env:"VIBEVOICE_HOST" envDefault:"0.0.0.0"`
		Port        int           `yaml:"port" env:"VIBEVOICE_PORT" envDefault:"3000"`
		AppDir      string        `yaml:"appDir" env:"VIBEVOICE_APP_DIR" envDefault:"."`
		Python      string        `yaml:"python" env:"VIBEVOICE_PYTHON" envDefault:"python"`
		StopTimeout time.Duration `yaml:"stopTimeout" env:"VIBEVOICE_STOP_TIMEOUT" envDefault:"10s"`
		MetricsAddr string        `yaml:"metricsAddr" env:"VIBEVOICE_METRICS_ADDR"`
	} `yaml:"server"`

	Device struct {
		Preference string `yaml:"preference" env:"VIBEVOICE_DEVICE" envDefault:"auto"`
		// Index stays a string so a malformed value can be reported instead of rejected.
		Index string `yaml:"index" env:"DIRECTML_DEVICE"`
	} `yaml:"device"`

	Client struct {
		URL        string        `yaml:"url" env:"VIBEVOICE_URL" envDefault:"ws://localhost:3000"`
		Text       string        `yaml:"text" env:"VIBEVOICE_TEXT" envDefault:"Hello! This is a test of the VibeVoice text-to-speech server."`
		Voice      string        `yaml:"voice" env:"VIBEVOICE_VOICE" envDefault:"Carter"`
		CFGScale   float64       `yaml:"cfgScale" env:"VIBEVOICE_CFG" envDefault:"1.5"`
		Steps      int           `yaml:"steps" env:"VIBEVOICE_STEPS" envDefault:"5"`
		Timeout    time.Duration `yaml:"timeout" env:"VIBEVOICE_TIMEOUT" envDefault:"60s"`
		SampleRate int           `yaml:"sampleRate" env:"VIBEVOICE_SAMPLE_RATE" envDefault:"24000"`
		OutputDir  string        `yaml:"outputDir" env:"VIBEVOICE_OUTPUT_DIR" envDefault:"."`
	} `yaml:"client"`

	Metrics struct {
		// PushGateway receives the metrics of the smoke and bench commands when set.
		PushGateway string `yaml:"pushGateway" env:"VIBEVOICE_PUSHGATEWAY"`
	} `yaml:"metrics"`

	Logger struct {
		Verbosity string `yaml:"verbosity" env:"VIBEVOICE_LOG_LEVEL" envDefault:"info"`
		Format    string `yaml:"format" env:"VIBEVOICE_LOG_FORMAT" envDefault:"console"`
	} `yaml:"logger"`
}

// Default returns the configuration with only the built-in defaults applied.
func Default() (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return &cfg, nil
}

// LoadConfig reads a YAML file on top of the defaults. Environment variables are not consulted.
func LoadConfig(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load builds the effective configuration. path and dotenv are optional; a missing
// dotenv file is ignored, a missing explicit config file is not.
func Load(path, dotenv string) (*Config, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", dotenv, err)
		}
	}

	var (
		cfg *Config
		err error
	)
	if path != "" {
		cfg, err = LoadConfig(path)
	} else {
		cfg, err = Default()
	}
	if err != nil {
		return nil, err
	}

	// Defaults were applied already; a second pass must only pick up variables that are set.
	if err := env.ParseWithOptions(cfg, env.Options{DefaultValueTagName: "-"}); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the launcher cannot work with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.Server.Python == "" {
		return fmt.Errorf("python interpreter must not be empty")
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("client timeout must be positive, got %s", c.Client.Timeout)
	}
	if c.Client.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.Client.SampleRate)
	}
	if c.Client.Steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", c.Client.Steps)
	}
	return nil
}

// Variables the server reads its model and device from.
const (
	EnvModelPath   = "MODEL_PATH"
	EnvModelDevice = "MODEL_DEVICE"
)

// ServerEnv is the environment handed to the server process for model on the resolved device.
func ServerEnv(model, deviceIdentifier string) map[string]string {
	return map[string]string{
		EnvModelPath:   model,
		EnvModelDevice: deviceIdentifier,
	}
}
