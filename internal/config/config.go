package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig collects the settings needed to run the scan service.
type AppConfig struct {
	ListenAddr    string
	Port          string
	GinMode       string
	SessionSecret string

	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	BlobDriver    string
	UploadDir     string
	UploadURLPath string
	BadgerDir     string

	RecognitionProvider string
	RecognitionURL      string
	RecognitionAPIKey   string
	RecognitionTimeout  time.Duration

	EnrichmentProvider string
	EnrichmentURL      string
	EnrichmentAPIKey   string
	EnrichmentTimeout  time.Duration

	VertexProjectID       string
	VertexLocation        string
	VertexCredentialsFile string
	VertexModel           string

	ScanRatePerMinute int
	ScanSessionTTL    time.Duration
}

var defaults = map[string]any{
	"PORT":                 "8080",
	"GIN_MODE":             "release",
	"SESSION_SECRET":       "stackscan-dev-secret",
	"DATABASE_DRIVER":      "sqlite",
	"DATABASE_PATH":        "stackscan.db",
	"BLOB_DRIVER":          "fs",
	"UPLOAD_DIR":           "web/static/uploads",
	"UPLOAD_URL_PATH":      "/static/uploads",
	"BADGER_DIR":           "data/images",
	"RECOGNITION_PROVIDER": "http",
	"RECOGNITION_TIMEOUT":  "90s",
	"ENRICHMENT_PROVIDER":  "http",
	"ENRICHMENT_TIMEOUT":   "60s",
	"VERTEX_LOCATION":      "us-central1",
	"VERTEX_MODEL":         "gemini-1.5-flash",
	"SCAN_RATE_PER_MINUTE": 6,
	"SCAN_SESSION_TTL":     "30m",
}

// Load reads configuration from the environment and, when CONFIG_FILE is set,
// from that file. Missing values fall back to safe defaults.
func Load() AppConfig {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if file := strings.TrimSpace(v.GetString("CONFIG_FILE")); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			log.Printf("config: ignoring %s: %v", file, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) AppConfig {
	get := func(key string) string {
		value := strings.TrimSpace(v.GetString(key))
		if value == "" {
			if fallback, ok := defaults[key]; ok {
				return fmt.Sprint(fallback)
			}
		}
		return value
	}

	port := get("PORT")
	listenAddr := get("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	rate := v.GetInt("SCAN_RATE_PER_MINUTE")
	if rate < 0 {
		rate = 0
	}

	return AppConfig{
		ListenAddr:    listenAddr,
		Port:          port,
		GinMode:       get("GIN_MODE"),
		SessionSecret: get("SESSION_SECRET"),

		DatabaseDriver: strings.ToLower(get("DATABASE_DRIVER")),
		DatabasePath:   get("DATABASE_PATH"),
		DatabaseDSN:    get("DATABASE_DSN"),

		BlobDriver:    strings.ToLower(get("BLOB_DRIVER")),
		UploadDir:     get("UPLOAD_DIR"),
		UploadURLPath: get("UPLOAD_URL_PATH"),
		BadgerDir:     get("BADGER_DIR"),

		RecognitionProvider: strings.ToLower(get("RECOGNITION_PROVIDER")),
		RecognitionURL:      get("RECOGNITION_URL"),
		RecognitionAPIKey:   get("RECOGNITION_API_KEY"),
		RecognitionTimeout:  durationOr(get("RECOGNITION_TIMEOUT"), 90*time.Second),

		EnrichmentProvider: strings.ToLower(get("ENRICHMENT_PROVIDER")),
		EnrichmentURL:      get("ENRICHMENT_URL"),
		EnrichmentAPIKey:   get("ENRICHMENT_API_KEY"),
		EnrichmentTimeout:  durationOr(get("ENRICHMENT_TIMEOUT"), 60*time.Second),

		VertexProjectID:       get("VERTEX_PROJECT_ID"),
		VertexLocation:        get("VERTEX_LOCATION"),
		VertexCredentialsFile: get("VERTEX_CREDENTIALS_FILE"),
		VertexModel:           get("VERTEX_MODEL"),

		ScanRatePerMinute: rate,
		ScanSessionTTL:    durationOr(get("SCAN_SESSION_TTL"), 30*time.Minute),
	}
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
