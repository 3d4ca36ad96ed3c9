package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	defaultConfigPath = "config/app.yaml"
	envPrefix         = "POOLGUARD_"
)

func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	cfgPath := resolveConfigPath()
	if st, err := os.Stat(cfgPath); err == nil && !st.IsDir() {
		if err := cleanenv.ReadConfig(cfgPath, cfg); err != nil {
			return nil, err
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}
	applyEnvAliases(cfg)
	normalizeConfig(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvAliases(cfg *AppConfig) {
	if cfg == nil {
		return
	}
	if v := getEnv("ENV", "APP_ENV"); v != "" {
		cfg.AppEnv = strings.TrimSpace(v)
	}
	if v := getEnv("PORT", envPrefix+"PORT"); v != "" {
		cfg.ListenAddr = listenAddrWithPort(cfg.ListenAddr, v)
	}
	if v := getEnv("DUMP_DIR", envPrefix+"DUMP_DIR"); v != "" {
		cfg.Dump.Dir = strings.TrimSpace(v)
	}
	if v := getEnv("DUMP_COOLDOWN_SECONDS", envPrefix+"DUMP_COOLDOWN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Dump.CooldownSeconds = n
		}
	}
	if v := getEnv("JOURNAL_PATH", envPrefix+"JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = strings.TrimSpace(v)
		cfg.Journal.Enabled = true
	}
	if v := getEnv("METRICS_TOKEN", envPrefix+"METRICS_TOKEN"); v != "" {
		cfg.Observability.MetricsToken = strings.TrimSpace(v)
	}
}

func normalizeConfig(cfg *AppConfig) {
	if cfg == nil {
		return
	}
	cfg.ListenAddr = strings.TrimSpace(cfg.ListenAddr)
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.Dump.Dir = strings.TrimSpace(cfg.Dump.Dir)
	cfg.Journal.Path = strings.TrimSpace(cfg.Journal.Path)
	cfg.Retention.CronExpression = strings.TrimSpace(cfg.Retention.CronExpression)
	cfg.Observability.MetricsToken = strings.TrimSpace(cfg.Observability.MetricsToken)
	if cfg.Dump.Dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Dump.Dir = home
		}
	}
	if cfg.Dump.CooldownSeconds <= 0 {
		cfg.Dump.CooldownSeconds = 600
	}
	if cfg.Retention.CronExpression == "" {
		cfg.Retention.CronExpression = "0 3 * * *"
	}
	if cfg.Retention.MaxAgeHours <= 0 {
		cfg.Retention.MaxAgeHours = 7 * 24
	}
	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		cfg.Journal.Path = "poolguard.db"
	}
	if cfg.Observability.Enabled && cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:9157"
	}
	for i := range cfg.Pools {
		cfg.Pools[i].Label = strings.TrimSpace(cfg.Pools[i].Label)
		if cfg.Pools[i].Core <= 0 {
			cfg.Pools[i].Core = 1
		}
		if cfg.Pools[i].Max < cfg.Pools[i].Core {
			cfg.Pools[i].Max = cfg.Pools[i].Core
		}
		if cfg.Pools[i].QueueSize <= 0 {
			cfg.Pools[i].QueueSize = 64
		}
	}
}

func getEnv(keys ...string) string {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func resolveConfigPath() string {
	if v := getEnv("APP_CONFIG", envPrefix+"APP_CONFIG"); v != "" {
		return strings.TrimSpace(v)
	}
	return defaultConfigPath
}

func listenAddrWithPort(currentAddr, portRaw string) string {
	port := strings.TrimSpace(portRaw)
	if port == "" {
		return currentAddr
	}
	if _, err := strconv.Atoi(port); err != nil {
		return currentAddr
	}
	host := "127.0.0.1"
	parts := strings.Split(strings.TrimSpace(currentAddr), ":")
	if len(parts) > 1 {
		host = strings.Join(parts[:len(parts)-1], ":")
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return host + ":" + port
}
