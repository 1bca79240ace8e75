package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

type OpenAIConfig struct {
	Endpoint  string `toml:"endpoint"`
	Model     string `toml:"model"`
	APIKey    string `toml:"api_key"`
	TimeoutMS int    `toml:"timeout_ms"`
}

type SMTPConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	From         string `toml:"from"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	ResetBaseURL string `toml:"reset_base_url"`
}

type Config struct {
	ListenHost           string       `toml:"listen_host"`
	ListenPort           int          `toml:"listen_port"`
	DBPath               string       `toml:"db_path"`
	LogLevel             string       `toml:"log_level"`
	Debug                bool         `toml:"debug"`
	JWTSecret            string       `toml:"jwt_secret"`
	AccessTokenTTLMin    int          `toml:"access_token_ttl_minutes"`
	RefreshTokenTTLHours int          `toml:"refresh_token_ttl_hours"`
	CreatorInfo          string       `toml:"creator_info"`
	OpenAI               OpenAIConfig `toml:"openai"`
	SMTP                 SMTPConfig   `toml:"smtp"`
}

func Defaults() Config {
	return Config{
		ListenHost:           "127.0.0.1",
		ListenPort:           8080,
		DBPath:               "taskhive.db",
		LogLevel:             "info",
		AccessTokenTTLMin:    15,
		RefreshTokenTTLHours: 24 * 30,
		OpenAI: OpenAIConfig{
			Model:     "gpt-4o-mini",
			TimeoutMS: 120000,
		},
		SMTP: SMTPConfig{
			Port:         587,
			ResetBaseURL: "http://127.0.0.1:8080",
		},
	}
}

// Load reads the optional TOML file at path, then applies environment
// overrides. A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
		if err == nil {
			if err := toml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, err
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.ListenHost, "TASKHIVE_LISTEN_HOST")
	setInt(&cfg.ListenPort, "TASKHIVE_LISTEN_PORT")
	setString(&cfg.DBPath, "TASKHIVE_DB_PATH")
	setString(&cfg.LogLevel, "TASKHIVE_LOG_LEVEL")
	if v := os.Getenv("TASKHIVE_DEBUG"); v != "" {
		cfg.Debug = v == "1" || v == "true"
	}
	setString(&cfg.JWTSecret, "TASKHIVE_JWT_SECRET")
	setString(&cfg.CreatorInfo, "TASKHIVE_CREATOR_INFO")
	setString(&cfg.OpenAI.Endpoint, "OPENAI_ENDPOINT")
	setString(&cfg.OpenAI.Model, "OPENAI_MODEL")
	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.SMTP.Host, "SMTP_HOST")
	setInt(&cfg.SMTP.Port, "SMTP_PORT")
	setString(&cfg.SMTP.From, "SMTP_FROM")
	setString(&cfg.SMTP.Username, "SMTP_USERNAME")
	setString(&cfg.SMTP.Password, "SMTP_PASSWORD")
	setString(&cfg.SMTP.ResetBaseURL, "TASKHIVE_RESET_BASE_URL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
