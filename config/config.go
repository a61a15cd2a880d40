// Package config loads runtime settings from defaults, an optional YAML file
// and COACH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	StrategyAuto = "auto"
	StrategyBlob = "blob"
	StrategyLive = "live"

	FormatWAV  = "wav"
	FormatFLAC = "flac"
)

type Config struct {
	AnalysisURL string

	Strategy string
	Format   string
	Device   string

	RecognizerURL      string
	RecognizerKey      string
	RecognizerLanguage string
	RecognizerModel    string

	BridgeAddr string
	LogPath    string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("analysis.url", "http://localhost:8080")
	v.SetDefault("capture.strategy", StrategyAuto)
	v.SetDefault("capture.format", FormatWAV)
	v.SetDefault("capture.device", "")
	v.SetDefault("recognizer.url", "")
	v.SetDefault("recognizer.key", "")
	v.SetDefault("recognizer.language", "en")
	v.SetDefault("recognizer.model", "")
	v.SetDefault("bridge.addr", "127.0.0.1:0")
	v.SetDefault("log.path", "")

	v.SetEnvPrefix("COACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path when set, otherwise config.yaml from the default config
// directory if it exists. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if d, err := DefaultDir(); err == nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(d)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	cfg := &Config{
		AnalysisURL:        strings.TrimRight(v.GetString("analysis.url"), "/"),
		Strategy:           strings.ToLower(v.GetString("capture.strategy")),
		Format:             strings.ToLower(v.GetString("capture.format")),
		Device:             v.GetString("capture.device"),
		RecognizerURL:      v.GetString("recognizer.url"),
		RecognizerKey:      v.GetString("recognizer.key"),
		RecognizerLanguage: v.GetString("recognizer.language"),
		RecognizerModel:    v.GetString("recognizer.model"),
		BridgeAddr:         v.GetString("bridge.addr"),
		LogPath:            v.GetString("log.path"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AnalysisURL == "" {
		return fmt.Errorf("analysis.url is empty")
	}
	switch c.Strategy {
	case StrategyAuto, StrategyBlob, StrategyLive:
	default:
		return fmt.Errorf("unknown capture.strategy %q (use auto, blob or live)", c.Strategy)
	}
	switch c.Format {
	case FormatWAV, FormatFLAC:
	default:
		return fmt.Errorf("unknown capture.format %q (use wav or flac)", c.Format)
	}
	if c.Strategy == StrategyLive && c.RecognizerURL == "" {
		return fmt.Errorf("capture.strategy=live needs recognizer.url")
	}
	return nil
}

func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "coach"), nil
}
