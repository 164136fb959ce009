// Package batch schedules recurring maintenance and digest work: sweeping
// stale terminal jobs out of the Job Store and, optionally, kicking off
// unattended deep-research runs on a cron schedule.
package batch

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Kind distinguishes the two recurring batch shapes this scheduler drives.
type Kind string

const (
	// KindCleanup sweeps completed/failed jobs older than MaxAgeHours out
	// of the Job Store.
	KindCleanup Kind = "cleanup"
	// KindDigest submits a deep-research job on a schedule and, once it
	// completes, hands the result to the notifier.
	KindDigest Kind = "digest"
)

// JobConfig is one scheduled entry: a cron expression paired with the
// parameters its Kind needs.
type JobConfig struct {
	Name             string   `toml:"name"`
	Kind             Kind     `toml:"kind"`
	Cron             string   `toml:"cron"`
	MaxAgeHours      int      `toml:"max_age_hours"`
	Query            string   `toml:"query"`
	ModelIDs         []string `toml:"model_ids"`
	JudgeModel       string   `toml:"judge_model"`
	NotifyOnComplete bool     `toml:"notify_on_complete"`
}

// ScheduleConfig holds every configured recurring job.
type ScheduleConfig struct {
	Jobs []JobConfig `toml:"job"`
}

// Validate checks a JobConfig and fills in defaults for optional fields.
func (c *JobConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("batch job name is required")
	}
	if c.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	switch c.Kind {
	case KindCleanup:
		if c.MaxAgeHours <= 0 {
			c.MaxAgeHours = 24
		}
	case KindDigest:
		if c.Query == "" {
			return fmt.Errorf("digest job %q requires a query", c.Name)
		}
	default:
		return fmt.Errorf("batch job %q has unknown kind %q", c.Name, c.Kind)
	}
	return nil
}

// MaxAge returns MaxAgeHours as a time.Duration.
func (c *JobConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeHours) * time.Hour
}

// LoadScheduleConfig loads recurring batch job configuration from a TOML
// file. A missing file yields an empty, valid schedule rather than an
// error, since scheduled jobs are an optional deployment feature.
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScheduleConfig{}, nil
		}
		return nil, err
	}

	var cfg ScheduleConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Jobs {
		if err := cfg.Jobs[i].Validate(); err != nil {
			return nil, fmt.Errorf("batch job %d: %w", i, err)
		}
	}

	return &cfg, nil
}
