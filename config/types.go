package config

type AppConfig struct {
	ListenAddr    string              `yaml:"listen_addr"`
	AppEnv        string              `yaml:"app_env"`
	Dump          DumpConfig          `yaml:"dump"`
	Journal       JournalConfig       `yaml:"journal"`
	Retention     RetentionConfig     `yaml:"retention"`
	Observability ObservabilityConfig `yaml:"observability"`
	Pools         []PoolConfig        `yaml:"pools"`
}

type DumpConfig struct {
	Dir             string `yaml:"dir"`
	CooldownSeconds int    `yaml:"cooldown_seconds"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type RetentionConfig struct {
	Enabled        bool   `yaml:"enabled"`
	CronExpression string `yaml:"cron_expression"`
	MaxAgeHours    int    `yaml:"max_age_hours"`
}

type ObservabilityConfig struct {
	Enabled      bool   `yaml:"enabled"`
	MetricsToken string `yaml:"metrics_token"`
}

type PoolConfig struct {
	Label     string `yaml:"label"`
	Core      int    `yaml:"core"`
	Max       int    `yaml:"max"`
	QueueSize int    `yaml:"queue_size"`
}
