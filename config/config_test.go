package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/config.yaml")

	config := loadConfig()

	if config.Extract.Country != "us" {
		t.Errorf("default country should be us, got %s", config.Extract.Country)
	}
	if !config.Extract.Headless {
		t.Errorf("default headless should be true")
	}
	if config.Extract.WaitTime != 10 {
		t.Errorf("default wait_time should be 10, got %d", config.Extract.WaitTime)
	}
	if config.Schedule.Cron != "0 0 * * 0" {
		t.Errorf("default cron should be weekly on Sunday, got %s", config.Schedule.Cron)
	}
	if config.Database.Type != "sqlite" {
		t.Errorf("default database type should be sqlite, got %s", config.Database.Type)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/config.yaml")
	t.Setenv("COUNTRY", "GB")
	t.Setenv("HEADLESS", "false")
	t.Setenv("WAIT_TIME", "20")
	t.Setenv("DATA_DIR", "/tmp/serp-data")
	t.Setenv("SCHEDULE_CRON", "0 2 * * 1")
	t.Setenv("GIT_BRANCH", "data")

	config := loadConfig()

	if config.Extract.Country != "gb" {
		t.Errorf("COUNTRY should be lowercased, got %s", config.Extract.Country)
	}
	if config.Extract.Headless {
		t.Errorf("HEADLESS=false should disable headless mode")
	}
	if config.Extract.WaitTime != 20 {
		t.Errorf("WAIT_TIME should be 20, got %d", config.Extract.WaitTime)
	}
	if config.Data.Dir != "/tmp/serp-data" {
		t.Errorf("DATA_DIR override not applied, got %s", config.Data.Dir)
	}
	if !config.Schedule.Enabled || config.Schedule.Cron != "0 2 * * 1" {
		t.Errorf("SCHEDULE_CRON should enable the schedule, got enabled=%v cron=%s",
			config.Schedule.Enabled, config.Schedule.Cron)
	}
	if config.Git.Branch != "data" {
		t.Errorf("GIT_BRANCH override not applied, got %s", config.Git.Branch)
	}
}

func TestLoadConfigInvalidWaitTime(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/config.yaml")
	t.Setenv("WAIT_TIME", "not-a-number")

	config := loadConfig()

	if config.Extract.WaitTime != 10 {
		t.Errorf("invalid WAIT_TIME should keep the default, got %d", config.Extract.WaitTime)
	}
	if config.Extract.WaitDuration() != 10*time.Second {
		t.Errorf("WaitDuration should be 10s, got %v", config.Extract.WaitDuration())
	}
}
