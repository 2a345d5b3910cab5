package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type MediaConfig struct {
	RTCMinPort  uint16 `mapstructure:"rtc_min_port"`
	RTCMaxPort  uint16 `mapstructure:"rtc_max_port"`
	AnnouncedIP string `mapstructure:"announced_ip"`
}

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	StaticPath   string        `mapstructure:"static_path"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Secret       string        `mapstructure:"secret"`
	Media        MediaConfig   `mapstructure:"media"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 3030)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("media.rtc_min_port", 40000)
	v.SetDefault("media.rtc_max_port", 49999)
	v.SetDefault("media.announced_ip", "127.0.0.1")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
