// Package config loads the bridge configuration from a YAML or JSON file
// with environment overrides (prefix VOC_, __ as section separator).
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/vocbridge/voc2mqtt/core/metrics"
	infracloud "github.com/vocbridge/voc2mqtt/infra/cloud"
	"github.com/vocbridge/voc2mqtt/infra/mqtt"
)

type Config struct {
	MQTT          mqtt.Config       `json:"mqtt"`
	VOC           infracloud.Config `json:"voc"`
	Refresh       RefreshConfig     `json:"refresh"`
	HomeAssistant HAConfig          `json:"homeassistant"`
	Metrics       metrics.Config    `json:"metrics"`
	Logging       LoggingConfig     `json:"logging"`
}

// Load reads the configuration file and applies environment overrides. An
// empty path loads from the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider("VOC_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "voc_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.MQTT.SetDefaults()
	cfg.VOC.SetDefaults()
	cfg.Refresh.SetDefaults()
	cfg.HomeAssistant.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.Logging.SetDefaults()
	if err := cfg.MQTT.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.VOC.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Refresh.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
