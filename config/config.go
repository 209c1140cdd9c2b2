package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Extract  ExtractConfig  `yaml:"extract"`
	Data     DataConfig     `yaml:"data"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Git      GitConfig      `yaml:"git"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite, mysql
	DSN  string `yaml:"dsn"`
}

type ExtractConfig struct {
	Country      string `yaml:"country"`       // two-letter country code for search results
	Headless     bool   `yaml:"headless"`      // run the browser without a display surface
	WaitTime     int    `yaml:"wait_time"`     // seconds to wait for page elements
	KeywordsFile string `yaml:"keywords_file"` // seed keyword list, one per line
	MaxWorkers   int    `yaml:"max_workers"`   // 1 keeps the original strictly sequential behavior
	MinDelay     int    `yaml:"min_delay"`     // seconds, lower bound of the inter-keyword pause
	MaxDelay     int    `yaml:"max_delay"`     // seconds, upper bound of the inter-keyword pause
}

type DataConfig struct {
	Dir string `yaml:"dir"`
}

type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

type GitConfig struct {
	Enabled       bool   `yaml:"enabled"`
	RepoDir       string `yaml:"repo_dir"`
	Remote        string `yaml:"remote"`
	Branch        string `yaml:"branch"`
	AuthorName    string `yaml:"author_name"`
	AuthorEmail   string `yaml:"author_email"`
	MessagePrefix string `yaml:"message_prefix"`
	Push          bool   `yaml:"push"`
}

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		cfg = loadConfig()
	})
	return cfg
}

func loadConfig() *Config {
	config := &Config{
		Server: ServerConfig{
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./data/serpwatch.db",
		},
		Extract: ExtractConfig{
			Country:      "us",
			Headless:     true,
			WaitTime:     10,
			KeywordsFile: "keywords.txt",
			MaxWorkers:   1,
			MinDelay:     3,
			MaxDelay:     5,
		},
		Data: DataConfig{
			Dir: "./data",
		},
		Schedule: ScheduleConfig{
			Enabled: false,
			Cron:    "0 0 * * 0", // Sundays at midnight
		},
		Git: GitConfig{
			Enabled:       false,
			RepoDir:       ".",
			Remote:        "origin",
			Branch:        "main",
			AuthorName:    "serpwatch-bot",
			AuthorEmail:   "serpwatch-bot@users.noreply.github.com",
			MessagePrefix: "Update keyword data",
			Push:          true,
		},
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		yaml.Unmarshal(data, config)
	}

	// Environment variables take precedence over the config file.
	// COUNTRY / HEADLESS / WAIT_TIME keep the contract of the original
	// extraction job.
	if country := os.Getenv("COUNTRY"); country != "" {
		config.Extract.Country = strings.ToLower(country)
	}
	if headless := os.Getenv("HEADLESS"); headless != "" {
		config.Extract.Headless = strings.ToLower(headless) == "true"
	}
	if waitTime := os.Getenv("WAIT_TIME"); waitTime != "" {
		if v, err := strconv.Atoi(waitTime); err == nil && v > 0 {
			config.Extract.WaitTime = v
		}
	}
	if keywordsFile := os.Getenv("KEYWORDS_FILE"); keywordsFile != "" {
		config.Extract.KeywordsFile = keywordsFile
	}

	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		config.Data.Dir = dataDir
	}

	if cronSpec := os.Getenv("SCHEDULE_CRON"); cronSpec != "" {
		config.Schedule.Cron = cronSpec
		config.Schedule.Enabled = true
	}

	if remote := os.Getenv("GIT_REMOTE"); remote != "" {
		config.Git.Remote = remote
	}
	if branch := os.Getenv("GIT_BRANCH"); branch != "" {
		config.Git.Branch = branch
	}

	return config
}

// WaitDuration returns the element wait time as a duration.
func (c *ExtractConfig) WaitDuration() time.Duration {
	return time.Duration(c.WaitTime) * time.Second
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func UpdateConfig(newCfg *Config) {
	cfg = newCfg
}
