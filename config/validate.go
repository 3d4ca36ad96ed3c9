package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

func Validate(cfg *AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Dump.CooldownSeconds < 0 {
		return fmt.Errorf("dump.cooldown_seconds must not be negative")
	}
	if cfg.Journal.Enabled && strings.TrimSpace(cfg.Journal.Path) == "" {
		return fmt.Errorf("journal.path must be set when journal is enabled")
	}
	if cfg.Retention.Enabled {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(cfg.Retention.CronExpression); err != nil {
			return fmt.Errorf("retention.cron_expression is invalid: %w", err)
		}
	}
	if cfg.Observability.Enabled && strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("listen_addr must be set when observability is enabled")
	}
	seen := map[string]bool{}
	for _, p := range cfg.Pools {
		label := strings.TrimSpace(p.Label)
		if label == "" {
			return fmt.Errorf("pool label must not be empty")
		}
		if !isSafeLabel(label) {
			return fmt.Errorf("pool label %q contains characters unsafe for file names", label)
		}
		if seen[label] {
			return fmt.Errorf("duplicate pool label %q", label)
		}
		seen[label] = true
		if p.Core <= 0 {
			return fmt.Errorf("pool %q: core must be positive", label)
		}
		if p.Max < p.Core {
			return fmt.Errorf("pool %q: max must be >= core", label)
		}
		if p.QueueSize <= 0 {
			return fmt.Errorf("pool %q: queue_size must be positive", label)
		}
	}
	return nil
}

// Labels end up in dump file names, so keep them portable across file systems.
func isSafeLabel(label string) bool {
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}
