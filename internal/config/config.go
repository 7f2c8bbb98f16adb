package config

import (
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Port                          string        `mapstructure:"PORT"`
	DatabaseDriver                string        `mapstructure:"DATABASE_DRIVER"`
	DatabasePath                  string        `mapstructure:"DATABASE_PATH"`
	JWTSecret                     string        `mapstructure:"JWT_SECRET"`
	EnableCORS                    bool          `mapstructure:"ENABLE_CORS"`
	CORSOrigins                   []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS                  float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst                int           `mapstructure:"RATE_LIMIT_BURST"`
	DiscordBotToken               string        `mapstructure:"DISCORD_BOT_TOKEN"`
	DiscordNotificationsChannelID string        `mapstructure:"DISCORD_NOTIFICATIONS_CHANNEL_ID"`
	LedgerURL                     string        `mapstructure:"LEDGER_URL"`
	LedgerToken                   string        `mapstructure:"LEDGER_TOKEN"`
	LocalStorePath                string        `mapstructure:"LOCAL_STORE_PATH"`
	LocalNamespace                string        `mapstructure:"LOCAL_NAMESPACE"`
	RequestTimeout                time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ProbeInterval                 time.Duration `mapstructure:"PROBE_INTERVAL"`
}

var boundKeys = []string{
	"PORT",
	"DATABASE_DRIVER",
	"DATABASE_PATH",
	"JWT_SECRET",
	"ENABLE_CORS",
	"CORS_ORIGINS",
	"RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST",
	"DISCORD_BOT_TOKEN",
	"DISCORD_NOTIFICATIONS_CHANNEL_ID",
	"LEDGER_URL",
	"LEDGER_TOKEN",
	"LOCAL_STORE_PATH",
	"LOCAL_NAMESPACE",
	"REQUEST_TIMEOUT",
	"PROBE_INTERVAL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_PATH", "streak.db")
	v.SetDefault("CORS_ORIGINS", []string{"http://127.0.0.1:4000"})
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 30)
	v.SetDefault("LEDGER_URL", "http://127.0.0.1:8080")
	v.SetDefault("LOCAL_STORE_PATH", "streak-local.db")
	v.SetDefault("LOCAL_NAMESPACE", "brightboost")
	v.SetDefault("REQUEST_TIMEOUT", 10*time.Second)
	v.SetDefault("PROBE_INTERVAL", 30*time.Second)
}

// New builds a viper instance with defaults, env bindings and, when
// configFile is set, the given config file.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	for _, key := range boundKeys {
		v.BindEnv(key)
	}
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Decode unmarshals v into a Config.
func Decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func LoadConfig(configFile string) *Config {
	v, err := New(configFile)
	if err != nil {
		log.Fatalf("Unable to read config file %s: %v", configFile, err)
	}
	config, err := Decode(v)
	if err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
	return config
}

// Watch calls onChange with the re-decoded config whenever the config file
// behind v changes on disk. It is a no-op when v has no config file.
func Watch(v *viper.Viper, onChange func(*Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Decode(v)
		if err != nil {
			log.Printf("config: reload of %s failed: %v", e.Name, err)
			return
		}
		log.Printf("config: reloaded %s (%s)", e.Name, e.Op)
		onChange(cfg)
	})
	v.WatchConfig()
}
