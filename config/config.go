package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the turnvault service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Firestore FirestoreConfig `mapstructure:"firestore"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Extract   ExtractConfig   `mapstructure:"extract"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Listen            string `mapstructure:"listen"`
	JWTSecret         string `mapstructure:"jwt_secret"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"` // bcrypt hash
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return fmt.Errorf("server.jwt_secret is required")
	}
	if strings.TrimSpace(s.AdminPasswordHash) == "" {
		return fmt.Errorf("server.admin_password_hash is required")
	}
	return nil
}

// LLMConfig contains the generative-language provider settings
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // gemini
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model is required")
	}
	return nil
}

// FirestoreConfig contains document-store credentials
type FirestoreConfig struct {
	ProjectID string        `mapstructure:"project_id"`
	APIKey    string        `mapstructure:"api_key"`
	Database  string        `mapstructure:"database"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

func (f FirestoreConfig) Validate() error {
	if strings.TrimSpace(f.ProjectID) == "" {
		return fmt.Errorf("firestore.project_id is required")
	}
	if strings.TrimSpace(f.APIKey) == "" {
		return fmt.Errorf("firestore.api_key is required")
	}
	return nil
}

// RedisConfig contains Redis connection settings for the session-list cache
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Enabled reports whether a cache backend is configured at all.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

// ExtractConfig contains extraction pipeline pacing and batching defaults
type ExtractConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	InteractivePace time.Duration `mapstructure:"interactive_pace"`
	BatchPace       time.Duration `mapstructure:"batch_pace"`
}

func (e ExtractConfig) Validate() error {
	if e.BatchSize < 1 || e.BatchSize > 100 {
		return fmt.Errorf("extract.batch_size must be in [1,100]")
	}
	return nil
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.default_timeout", 30*time.Second)
	viper.SetDefault("server.listen", ":10021")
	viper.SetDefault("llm.provider", "gemini")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 8192)
	viper.SetDefault("llm.timeout", 60*time.Second)
	viper.SetDefault("firestore.database", "(default)")
	viper.SetDefault("firestore.timeout", 15*time.Second)
	viper.SetDefault("redis.cache_ttl", 60*time.Second)
	viper.SetDefault("extract.batch_size", 10)
	viper.SetDefault("extract.interactive_pace", 2*time.Second)
	viper.SetDefault("extract.batch_pace", 500*time.Millisecond)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("TURNVAULT")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.LLM.Validate(); err != nil {
		panic(err)
	}
	if err := config.Firestore.Validate(); err != nil {
		panic(err)
	}
	if err := config.Extract.Validate(); err != nil {
		panic(err)
	}
	return &config
}
