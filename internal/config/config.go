package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is built once at startup and handed to every constructor.
type Config struct {
	BaseDir  string         `mapstructure:"base_dir" validate:"required"`
	Log      LogConfig      `mapstructure:"log"`
	Location LocationConfig `mapstructure:"location"`
	Weather  WeatherConfig  `mapstructure:"weather"`
	Model    ModelConfig    `mapstructure:"model"`
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type LogConfig struct {
	Level   string `mapstructure:"level" validate:"oneof=debug info success warning warn error critical"`
	File    string `mapstructure:"file"` // relative to BaseDir unless absolute
	Console bool   `mapstructure:"console"`
}

// City is one entry of the name to coordinates table.
type City struct {
	Name string  `mapstructure:"name" validate:"required"`
	Lat  float64 `mapstructure:"lat" validate:"gte=-90,lte=90"`
	Lon  float64 `mapstructure:"lon" validate:"gte=-180,lte=180"`
}

type LocationConfig struct {
	// City pins the run to a named city instead of IP geolocation.
	City           string        `mapstructure:"city"`
	Default        string        `mapstructure:"default" validate:"required"`
	Cities         []City        `mapstructure:"cities" validate:"dive"`
	IPLookupURL    string        `mapstructure:"ip_lookup_url" validate:"required,url"`
	LookupTimeout  time.Duration `mapstructure:"lookup_timeout" validate:"gt=0"`
	GeocoderAPIKey string        `mapstructure:"geocoder_api_key"`
}

type WeatherConfig struct {
	BaseURL     string        `mapstructure:"base_url" validate:"required,url"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	CachePath   string        `mapstructure:"cache_path"` // empty keeps the cache in memory
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1"`
	BackoffBase time.Duration `mapstructure:"backoff_base" validate:"gt=0"`
	BackoffMax  time.Duration `mapstructure:"backoff_max" validate:"gte=0"`
}

type ModelConfig struct {
	Backend        string        `mapstructure:"backend" validate:"oneof=ollama openai llamacpp"`
	Endpoint       string        `mapstructure:"endpoint" validate:"required,url"`
	Name           string        `mapstructure:"name"`
	Path           string        `mapstructure:"path"` // GGUF artifact for the llamacpp backend
	ServerBinary   string        `mapstructure:"server_binary"`
	ContextSize    int           `mapstructure:"context_size" validate:"gt=0"`
	GPULayers      int           `mapstructure:"gpu_layers"`
	Mode           string        `mapstructure:"mode" validate:"oneof=completion chat"`
	Stream         bool          `mapstructure:"stream"`
	MaxTokens      int           `mapstructure:"max_tokens" validate:"gt=0"`
	Temperature    float64       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	TopP           float64       `mapstructure:"top_p" validate:"gt=0,lte=1"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`
	PollInterval   time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	SystemPrompt   string        `mapstructure:"system_prompt"`
	UserPrompt     string        `mapstructure:"user_prompt"`
	AssistantCue   string        `mapstructure:"assistant_cue"`
}

type ServerConfig struct {
	Port             int           `mapstructure:"port" validate:"gt=0,lte=65535"`
	ScheduleInterval time.Duration `mapstructure:"schedule_interval" validate:"gte=0"`
	RunTimeout       time.Duration `mapstructure:"run_timeout" validate:"gt=0"`
}

// StoreConfig bounds the in-memory run history served over HTTP.
type StoreConfig struct {
	MaxHistory int           `mapstructure:"max_history"`
	MaxAge     time.Duration `mapstructure:"max_age"`
}

type MirrorConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket" validate:"required_if=Enabled true"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type NotifyConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers" validate:"required_if=Enabled true"`
	Topic   string   `mapstructure:"topic" validate:"required_if=Enabled true"`
}

var validate = validator.New()

// Load reads .env, an optional config.yaml and WEATHER_AI_* environment
// variables on top of the defaults below.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.weather-ai")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("WEATHER_AI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Model.Backend == "llamacpp" && cfg.Model.Path == "" {
		return nil, errors.New("invalid config: model.path is required for the llamacpp backend")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_dir", ".")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", filepath.Join("logs", "weather_log.txt"))
	v.SetDefault("log.console", true)

	v.SetDefault("location.city", "")
	v.SetDefault("location.default", "Cracow")
	v.SetDefault("location.cities", []map[string]any{
		{"name": "Cracow", "lat": 50.06, "lon": 19.94},
		{"name": "Chorzow", "lat": 50.30, "lon": 18.95},
		{"name": "Warsaw", "lat": 52.23, "lon": 21.01},
	})
	v.SetDefault("location.ip_lookup_url", "http://ip-api.com/json/")
	v.SetDefault("location.lookup_timeout", 5*time.Second)
	v.SetDefault("location.geocoder_api_key", "")

	v.SetDefault("weather.base_url", "https://api.open-meteo.com/v1/forecast")
	v.SetDefault("weather.timeout", 10*time.Second)
	v.SetDefault("weather.cache_ttl", time.Hour)
	v.SetDefault("weather.cache_path", filepath.Join("cache", "http_cache.sqlite"))
	v.SetDefault("weather.max_attempts", 5)
	v.SetDefault("weather.backoff_base", 200*time.Millisecond)
	v.SetDefault("weather.backoff_max", 5*time.Second)

	v.SetDefault("model.backend", "ollama")
	v.SetDefault("model.endpoint", "http://localhost:11434")
	v.SetDefault("model.name", "llama3.2")
	v.SetDefault("model.path", "")
	v.SetDefault("model.server_binary", "llama-server")
	v.SetDefault("model.context_size", 1024)
	v.SetDefault("model.gpu_layers", -1)
	v.SetDefault("model.mode", "completion")
	v.SetDefault("model.stream", true)
	v.SetDefault("model.max_tokens", 300)
	v.SetDefault("model.temperature", 0.7)
	v.SetDefault("model.top_p", 0.95)
	v.SetDefault("model.connect_timeout", 30*time.Second)
	v.SetDefault("model.poll_interval", time.Second)
	v.SetDefault("model.system_prompt", "You are a concise weather presenter. Use only the data you are given.")
	v.SetDefault("model.user_prompt", "Describe the weather from this report in a few short sentences:")
	v.SetDefault("model.assistant_cue", "Based on these data, describe the current weather briefly:")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.schedule_interval", time.Duration(0))
	v.SetDefault("server.run_timeout", 10*time.Minute)

	v.SetDefault("store.max_history", 96)
	v.SetDefault("store.max_age", 24*time.Hour)

	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.endpoint", "")
	v.SetDefault("mirror.access_key", "")
	v.SetDefault("mirror.secret_key", "")
	v.SetDefault("mirror.bucket", "weather-ai")
	v.SetDefault("mirror.use_ssl", false)

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.brokers", []string{"localhost:9092"})
	v.SetDefault("notify.topic", "weather-ai.runs")
}

// Path resolves p against BaseDir unless it is already absolute.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// DataDir holds weather report artifacts.
func (c *Config) DataDir() string { return c.Path("data") }

// ResponsesDir holds model description artifacts.
func (c *Config) ResponsesDir() string { return c.Path("responses") }

// ServerAddr returns the listen address in the form ":port".
func (c *Config) ServerAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
