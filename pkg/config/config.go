package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath    = "config.yaml"
	defaultOwner         = "default"
	defaultCacheBackend  = "file"
	defaultCacheDir      = "./.cache/assetdistributor"
	defaultSQLiteDSN     = "./assetdistributor.db"
	defaultRedisAddr     = "localhost:6379"
	defaultS3Region      = "us-east-1"
	defaultCallbackAddr  = "localhost:8085"
	defaultHTTPTimeout   = 10 * time.Minute
	defaultMaxRetries    = 3
	defaultRateLimit     = 5.0
	defaultRateBurst     = 10
	defaultVimeoAPIBase  = "https://api.vimeo.com"
	defaultVimeoAuthURL  = "https://api.vimeo.com/oauth/authorize"
	defaultVimeoTokenURL = "https://api.vimeo.com/oauth/access_token"
	defaultDMAPIBase     = "https://api.dailymotion.com"
	defaultDMAuthURL     = "https://www.dailymotion.com/oauth/authorize"
	defaultDMTokenURL    = "https://api.dailymotion.com/oauth/token"
	defaultYouTubeAuth   = "https://accounts.google.com/o/oauth2/auth"
	defaultYouTubeToken  = "https://oauth2.googleapis.com/token"
)

type Config struct {
	EncryptionKey string
	GCPProject    string

	Owner    string         `yaml:"owner"`
	Cache    CacheConfig    `yaml:"cache"`
	Vendors  VendorsConfig  `yaml:"vendors"`
	Callback CallbackConfig `yaml:"callback"`
	HTTP     HTTPConfig     `yaml:"http"`
}

type CacheConfig struct {
	Backend string        `yaml:"backend"` // memory, file, sqlite, redis, gcs or s3
	Dir     string        `yaml:"dir"`
	DSN     string        `yaml:"dsn"`
	Prefix  string        `yaml:"prefix"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
	GCS     BucketConfig  `yaml:"gcs"`
	S3      BucketConfig  `yaml:"s3"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`
}

type BucketConfig struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

type VendorConfig struct {
	Disabled     bool              `yaml:"disabled"`
	ClientID     string            `yaml:"-"`
	ClientSecret string            `yaml:"-"`
	Scopes       []string          `yaml:"scopes"`
	AuthURL      string            `yaml:"auth_url"`
	TokenURL     string            `yaml:"token_url"`
	APIBase      string            `yaml:"api_base"`
	RedirectURL  string            `yaml:"redirect_url"`
	Categories   map[string]string `yaml:"categories"`
	RateLimit    float64           `yaml:"rate_limit"`
	Burst        int               `yaml:"burst"`
}

// Configured reports whether the vendor has application credentials.
func (v VendorConfig) Configured() bool {
	return !v.Disabled && v.ClientID != "" && v.ClientSecret != ""
}

type VendorsConfig struct {
	YouTube     VendorConfig `yaml:"youtube"`
	Vimeo       VendorConfig `yaml:"vimeo"`
	Dailymotion VendorConfig `yaml:"dailymotion"`
}

// Get resolves a vendor section by its lowercase name.
func (v VendorsConfig) Get(name string) (VendorConfig, bool) {
	switch strings.ToLower(name) {
	case "youtube":
		return v.YouTube, true
	case "vimeo":
		return v.Vimeo, true
	case "dailymotion":
		return v.Dailymotion, true
	default:
		return VendorConfig{}, false
	}
}

type CallbackConfig struct {
	Addr    string `yaml:"addr"`
	BaseURL string `yaml:"base_url"`
}

type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		EncryptionKey: os.Getenv("ASSETDIST_ENCRYPTION_KEY"),
		GCPProject:    os.Getenv("GOOGLE_CLOUD_PROJECT"),
	}

	if err := loadYAMLConfig(cfg, getEnvOrDefault("ASSETDIST_CONFIG", defaultConfigPath)); err != nil {
		return nil, err
	}

	cfg.Vendors.YouTube.ClientID = os.Getenv("YOUTUBE_CLIENT_ID")
	cfg.Vendors.YouTube.ClientSecret = os.Getenv("YOUTUBE_CLIENT_SECRET")
	cfg.Vendors.Vimeo.ClientID = os.Getenv("VIMEO_CLIENT_ID")
	cfg.Vendors.Vimeo.ClientSecret = os.Getenv("VIMEO_CLIENT_SECRET")
	cfg.Vendors.Dailymotion.ClientID = os.Getenv("DAILYMOTION_API_KEY")
	cfg.Vendors.Dailymotion.ClientSecret = os.Getenv("DAILYMOTION_API_SECRET")
	cfg.Cache.Redis.Password = os.Getenv("REDIS_PASSWORD")

	if owner := os.Getenv("ASSETDIST_OWNER"); owner != "" {
		cfg.Owner = owner
	}

	if err := resolveSecrets(ctx, cfg); err != nil {
		return nil, fmt.Errorf("resolve secrets: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func loadYAMLConfig(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Owner == "" {
		cfg.Owner = defaultOwner
	}
	applyCacheDefaults(cfg)
	applyCallbackDefaults(cfg)
	applyHTTPDefaults(cfg)
	applyYouTubeDefaults(cfg)
	applyVimeoDefaults(cfg)
	applyDailymotionDefaults(cfg)
}

func applyCacheDefaults(cfg *Config) {
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = defaultCacheBackend
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = defaultCacheDir
	}
	if cfg.Cache.DSN == "" {
		cfg.Cache.DSN = defaultSQLiteDSN
	}
	if cfg.Cache.Redis.Addr == "" {
		cfg.Cache.Redis.Addr = defaultRedisAddr
	}
	if cfg.Cache.S3.Region == "" {
		cfg.Cache.S3.Region = getEnvOrDefault("AWS_REGION", defaultS3Region)
	}
}

func applyCallbackDefaults(cfg *Config) {
	if cfg.Callback.Addr == "" {
		cfg.Callback.Addr = defaultCallbackAddr
	}
	if cfg.Callback.BaseURL == "" {
		cfg.Callback.BaseURL = "http://" + cfg.Callback.Addr
	}
}

func applyHTTPDefaults(cfg *Config) {
	if cfg.HTTP.Timeout == 0 {
		cfg.HTTP.Timeout = defaultHTTPTimeout
	}
	if cfg.HTTP.MaxRetries == 0 {
		cfg.HTTP.MaxRetries = defaultMaxRetries
	}
}

func applyYouTubeDefaults(cfg *Config) {
	v := &cfg.Vendors.YouTube
	if len(v.Scopes) == 0 {
		v.Scopes = []string{
			"https://www.googleapis.com/auth/youtube",
			"https://www.googleapis.com/auth/youtube.readonly",
			"https://www.googleapis.com/auth/youtube.upload",
		}
	}
	if v.AuthURL == "" {
		v.AuthURL = defaultYouTubeAuth
	}
	if v.TokenURL == "" {
		v.TokenURL = defaultYouTubeToken
	}
	applyVendorCommonDefaults(cfg, v, "youtube")
}

func applyVimeoDefaults(cfg *Config) {
	v := &cfg.Vendors.Vimeo
	if len(v.Scopes) == 0 {
		v.Scopes = []string{"public", "create", "edit", "delete", "upload"}
	}
	if v.AuthURL == "" {
		v.AuthURL = defaultVimeoAuthURL
	}
	if v.TokenURL == "" {
		v.TokenURL = defaultVimeoTokenURL
	}
	if v.APIBase == "" {
		v.APIBase = defaultVimeoAPIBase
	}
	applyVendorCommonDefaults(cfg, v, "vimeo")
}

func applyDailymotionDefaults(cfg *Config) {
	v := &cfg.Vendors.Dailymotion
	if len(v.Scopes) == 0 {
		v.Scopes = []string{"manage_videos"}
	}
	if v.AuthURL == "" {
		v.AuthURL = defaultDMAuthURL
	}
	if v.TokenURL == "" {
		v.TokenURL = defaultDMTokenURL
	}
	if v.APIBase == "" {
		v.APIBase = defaultDMAPIBase
	}
	applyVendorCommonDefaults(cfg, v, "dailymotion")
}

func applyVendorCommonDefaults(cfg *Config, v *VendorConfig, name string) {
	if v.RedirectURL == "" {
		v.RedirectURL = strings.TrimSuffix(cfg.Callback.BaseURL, "/") + "/callback/" + name
	}
	if v.RateLimit == 0 {
		v.RateLimit = defaultRateLimit
	}
	if v.Burst == 0 {
		v.Burst = defaultRateBurst
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
