package config

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
	"lecture-narrator/constant"
)

const (
	DefaultWorkers             = 1
	DefaultMaxUploadMB         = 50
	DefaultScriptDelay         = time.Second
	DefaultAudioDelay          = 2 * time.Second
	DefaultMinBlockChars       = 20
	DefaultPlaceholderImageURL = "/assets/slide-placeholder.png"
	DefaultLLMModel            = "gemini-2.0-flash"
	DefaultLLMTemperature      = 0.7
	DefaultTTSBaseURL          = "https://api.openai.com"
	DefaultTTSModel            = "tts-1"
	DefaultTTSFormat           = "mp3"
	DefaultTTSTimeout          = 60 * time.Second
)

type Config struct {
	App         App           `yaml:"app"`
	Server      Server        `yaml:"server"`
	PostgresDSN string        `yaml:"postgresql_host"`
	DB          *sql.DB       `yaml:"db"`
	Queue       *RabbitMQ     `yaml:"rabbitmq"`
	MinIO       MinIO         `yaml:"minio"`
	Storage     *minio.Client `yaml:"storage"`
	LLM         LLM           `yaml:"llm"`
	TTS         TTS           `yaml:"tts"`
	Pipeline    Pipeline      `yaml:"pipeline"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort    string `yaml:"port"`
	Workers     int    `yaml:"workers"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

type RabbitMQ struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	User string `json:"user"`
	Pass string `json:"pass"`
	Kind string `json:"kind"`
}

type MinIO struct {
	URL             string `yaml:"url"`
	AccessID        string `yaml:"access_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	PublicURL       string `yaml:"public_url"`
	Secure          bool   `yaml:"secure"`
}

type LLM struct {
	APIKeys     []string `yaml:"api_keys"`
	Model       string   `yaml:"model"`
	Temperature float32  `yaml:"temperature"`
}

type TTS struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Format  string        `yaml:"format"`
	Timeout time.Duration `yaml:"timeout_seconds"`
}

type Pipeline struct {
	ScriptDelay         time.Duration `yaml:"script_delay_ms"`
	AudioDelay          time.Duration `yaml:"audio_delay_ms"`
	MinBlockChars       int           `yaml:"min_block_chars"`
	PlaceholderImageURL string        `yaml:"placeholder_image_url"`
}

// Load reads config.yaml from path and opens the database and object store clients.
func Load(path string) (*Config, error) {
	cfg, err := LoadSettings(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	minioClient, err := minio.New(cfg.MinIO.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessID, cfg.MinIO.SecretAccessKey, ""),
		Secure: cfg.MinIO.Secure,
	})
	if err != nil {
		return nil, err
	}

	cfg.DB = db
	cfg.Storage = minioClient
	return cfg, nil
}

// LoadSettings reads and validates the settings without opening any connection.
// Environment variables override file values, with dots replaced by underscores.
func LoadSettings(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{
		App: App{
			Environment: v.GetString("app.environment"),
			Host:        v.GetString("app.host"),
			Protocol:    v.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort:    v.GetString("server.port"),
			Workers:     v.GetInt("server.workers"),
			MaxUploadMB: v.GetInt("server.max_upload_mb"),
		},
		PostgresDSN: v.GetString("postgresql_host"),
		Queue: &RabbitMQ{
			Host: v.GetString("rabbitmq_host"),
			Port: v.GetInt("rabbitmq_port"),
			User: v.GetString("rabbitmq_user"),
			Pass: v.GetString("rabbitmq_pass"),
			Kind: v.GetString("rabbitmq_kind"),
		},
		MinIO: MinIO{
			URL:             v.GetString("minio.url"),
			AccessID:        v.GetString("minio.access_id"),
			SecretAccessKey: v.GetString("minio.secret_access_key"),
			Bucket:          v.GetString("minio.bucket"),
			PublicURL:       v.GetString("minio.public_url"),
			Secure:          v.GetBool("minio.secure"),
		},
		LLM: LLM{
			APIKeys:     v.GetStringSlice("llm.api_keys"),
			Model:       v.GetString("llm.model"),
			Temperature: float32(v.GetFloat64("llm.temperature")),
		},
		TTS: TTS{
			BaseURL: v.GetString("tts.base_url"),
			APIKey:  v.GetString("tts.api_key"),
			Model:   v.GetString("tts.model"),
			Format:  v.GetString("tts.format"),
			Timeout: time.Duration(v.GetInt("tts.timeout_seconds")) * time.Second,
		},
		Pipeline: Pipeline{
			ScriptDelay:         time.Duration(v.GetInt("pipeline.script_delay_ms")) * time.Millisecond,
			AudioDelay:          time.Duration(v.GetInt("pipeline.audio_delay_ms")) * time.Millisecond,
			MinBlockChars:       v.GetInt("pipeline.min_block_chars"),
			PlaceholderImageURL: v.GetString("pipeline.placeholder_image_url"),
		},
	}
	if !v.IsSet("llm.temperature") {
		cfg.LLM.Temperature = DefaultLLMTemperature
	}
	if !v.IsSet("pipeline.script_delay_ms") {
		cfg.Pipeline.ScriptDelay = DefaultScriptDelay
	}
	if !v.IsSet("pipeline.audio_delay_ms") {
		cfg.Pipeline.AudioDelay = DefaultAudioDelay
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills defaults and rejects settings no component can run with.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		c.App.Environment = constant.EnvironmentDevelop.String()
	}
	if c.Server.HttpPort == "" {
		c.Server.HttpPort = "8080"
	}
	if c.Server.Workers < 1 {
		c.Server.Workers = DefaultWorkers
	}
	if c.Server.MaxUploadMB < 1 {
		c.Server.MaxUploadMB = DefaultMaxUploadMB
	}
	if c.Queue != nil && c.Queue.Kind == "" {
		c.Queue.Kind = "direct"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultLLMModel
	}
	if c.TTS.BaseURL == "" {
		c.TTS.BaseURL = DefaultTTSBaseURL
	}
	if c.TTS.Model == "" {
		c.TTS.Model = DefaultTTSModel
	}
	if c.TTS.Format == "" {
		c.TTS.Format = DefaultTTSFormat
	}
	if c.TTS.Timeout <= 0 {
		c.TTS.Timeout = DefaultTTSTimeout
	}
	if c.Pipeline.MinBlockChars < 1 {
		c.Pipeline.MinBlockChars = DefaultMinBlockChars
	}
	if c.Pipeline.PlaceholderImageURL == "" {
		c.Pipeline.PlaceholderImageURL = DefaultPlaceholderImageURL
	}

	if c.Pipeline.ScriptDelay < 0 || c.Pipeline.AudioDelay < 0 {
		return fmt.Errorf("pipeline delays must not be negative")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature %.2f out of range [0, 2]", c.LLM.Temperature)
	}
	switch c.TTS.Format {
	case "mp3", "wav", "opus", "aac", "flac":
	default:
		return fmt.Errorf("unsupported tts.format %q", c.TTS.Format)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == constant.EnvironmentProduction.String()
}

// MaxUploadBytes is the largest accepted source file.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}
