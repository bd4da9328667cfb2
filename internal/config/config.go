package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取 YAML 配置并应用默认值与校验。
// api_keys 的值在这里做 ${ENV_VAR} 展开，后续代码拿到的永远是明文 key。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	expandAPIKeys(&cfg)
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func expandAPIKeys(cfg *Config) {
	if cfg.Data.APIKeys == nil {
		return
	}
	expanded := make(map[string]string, len(cfg.Data.APIKeys))
	for provider, key := range cfg.Data.APIKeys {
		expanded[strings.ToLower(strings.TrimSpace(provider))] = os.ExpandEnv(key)
	}
	cfg.Data.APIKeys = expanded
}
