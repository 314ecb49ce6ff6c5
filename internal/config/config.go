package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Upload      UploadConfig      `mapstructure:"upload"`
	Fingerprint FingerprintConfig `mapstructure:"fingerprint"`
	Match       MatchConfig       `mapstructure:"match"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Tools       ToolsConfig       `mapstructure:"tools"`
	Audio       AudioConfig       `mapstructure:"audio"`
	Alerts      AlertsConfig      `mapstructure:"alerts"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`   // sqlite file path
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN builds the connection string for the configured driver.
// Parameters: none.
// Returns:
//   - string: driver-specific data source name.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type UploadConfig struct {
	ChunksDir    string `mapstructure:"chunks_dir"`
	FramesDir    string `mapstructure:"frames_dir"`
	AssembledDir string `mapstructure:"assembled_dir"`
}

type FingerprintConfig struct {
	VisualDim int `mapstructure:"visual_dim"`
	AudioDim  int `mapstructure:"audio_dim"`
	FPS       int `mapstructure:"fps"`
}

type MatchConfig struct {
	// Threshold is a percentage in [0,100]; matches below it are discarded.
	Threshold float64 `mapstructure:"threshold"`
}

type NotifyConfig struct {
	KeepaliveSeconds int `mapstructure:"keepalive_seconds"`
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

type ToolsConfig struct {
	FFmpegPath     string `mapstructure:"ffmpeg_path"`
	HasherPath     string `mapstructure:"hasher_path"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type AudioConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type AlertsConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type IngestConfig struct {
	Workers int    `mapstructure:"workers"`
	Dir     string `mapstructure:"dir"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Environment string `mapstructure:"environment"`
	File        string `mapstructure:"file"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/marine.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "marine-artifacts")
	v.SetDefault("upload.chunks_dir", "./data/video_chunks")
	v.SetDefault("upload.frames_dir", "./data/frames_temp")
	v.SetDefault("upload.assembled_dir", "./data/assembled")
	v.SetDefault("fingerprint.visual_dim", 64)
	v.SetDefault("fingerprint.audio_dim", 128)
	v.SetDefault("fingerprint.fps", 1)
	v.SetDefault("match.threshold", 80)
	v.SetDefault("notify.keepalive_seconds", 15)
	v.SetDefault("notify.subscriber_buffer", 16)
	v.SetDefault("tools.ffmpeg_path", "ffmpeg")
	v.SetDefault("tools.hasher_path", "phash")
	v.SetDefault("tools.timeout_seconds", 120)
	v.SetDefault("audio.enabled", false)
	v.SetDefault("audio.timeout_seconds", 120)
	v.SetDefault("alerts.enabled", false)
	v.SetDefault("alerts.brokers", []string{"localhost:9092"})
	v.SetDefault("alerts.topic", "piracy_links")
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.dir", "./data/crawled")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "local")
	v.SetDefault("log.file", "")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("audio.api_key", "AUDIO_API_KEY")
	v.BindEnv("alerts.brokers", "KAFKA_BROKERS")
	v.BindEnv("match.threshold", "MATCH_THRESHOLD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate checks the invariants that must hold for the whole corpus.
func (c *Config) validate() error {
	if c.Fingerprint.VisualDim <= 0 || c.Fingerprint.AudioDim <= 0 {
		return fmt.Errorf("fingerprint dimensions must be positive, got visual=%d audio=%d",
			c.Fingerprint.VisualDim, c.Fingerprint.AudioDim)
	}
	if c.Match.Threshold < 0 || c.Match.Threshold > 100 {
		return fmt.Errorf("match threshold must be within [0,100], got %v", c.Match.Threshold)
	}
	if c.Fingerprint.FPS <= 0 {
		return fmt.Errorf("fingerprint fps must be positive, got %d", c.Fingerprint.FPS)
	}
	return nil
}
