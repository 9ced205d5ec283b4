package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/quizlive/quizlive/internal/game"
)

// Config is the optional YAML file for game pacing overrides. Everything else
// comes from the environment.
type Config struct {
	Game struct {
		QuestionSeconds    int `yaml:"question_seconds"`
		LeaderboardSeconds int `yaml:"leaderboard_seconds"`
	} `yaml:"game"`
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// gameConfig resolves session pacing: defaults, then the optional YAML file,
// then environment overrides.
func gameConfig() game.Config {
	cfg := game.DefaultConfig()

	if path := os.Getenv("GAME_CONFIG_FILE"); path != "" {
		fileCfg, err := loadConfig(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("ignoring unreadable game config file")
		} else {
			if fileCfg.Game.QuestionSeconds > 0 {
				cfg.DefaultQuestionSec = fileCfg.Game.QuestionSeconds
			}
			if fileCfg.Game.LeaderboardSeconds > 0 {
				cfg.LeaderboardSec = fileCfg.Game.LeaderboardSeconds
			}
		}
	}

	cfg.DefaultQuestionSec = getEnvAsInt("GAME_QUESTION_SECONDS", cfg.DefaultQuestionSec)
	cfg.LeaderboardSec = getEnvAsInt("GAME_LEADERBOARD_SECONDS", cfg.LeaderboardSec)
	return cfg
}
