package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"property-map-search/models"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	PropertySource    string // "csv" or "postgres"
	SeedPostgres      bool
	CSVInputPath      string
	CSVOutputPath     string
	SourceCacheTTLSec int

	ChromeBin  string
	MapPageURL string
	HTTPAddr   string
	LogLevel   string

	DefaultLat        float64
	DefaultLng        float64
	DefaultPriceMin   float64
	DefaultPriceMax   float64
	DefaultRadius     float64
	DefaultClustering bool
	DefaultHeatmap    bool

	// InitialViewport is "south,north,west,east"; empty means no viewport yet.
	InitialViewport string

	MaxConcurrency      int
	RecomputeIntervalMs int
	MaxRetries          int
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "search"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "search123"),
		PostgresDB:       getEnv("POSTGRES_DB", "property_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		PropertySource:    strings.ToLower(getEnv("PROPERTY_SOURCE", "csv")),
		SeedPostgres:      getEnvBool("SEED_POSTGRES", false),
		CSVInputPath:      getEnv("CSV_INPUT_PATH", "./data/properties.csv"),
		CSVOutputPath:     getEnv("CSV_OUTPUT_PATH", "./output/filtered_properties.csv"),
		SourceCacheTTLSec: getEnvInt("SOURCE_CACHE_TTL_SEC", 300),

		ChromeBin:  getEnv("CHROME_BIN", ""),
		MapPageURL: getEnv("MAP_PAGE_URL", ""),
		HTTPAddr:   getEnv("HTTP_ADDR", ""),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		DefaultLat:        getEnvFloat("DEFAULT_LAT", 6.5244),
		DefaultLng:        getEnvFloat("DEFAULT_LNG", 3.3792),
		DefaultPriceMin:   getEnvFloat("DEFAULT_PRICE_MIN", 0),
		DefaultPriceMax:   getEnvFloat("DEFAULT_PRICE_MAX", 1_000_000_000),
		DefaultRadius:     getEnvFloat("DEFAULT_RADIUS", 10),
		DefaultClustering: getEnvBool("DEFAULT_CLUSTERING", true),
		DefaultHeatmap:    getEnvBool("DEFAULT_HEATMAP", false),

		InitialViewport: getEnv("INITIAL_VIEWPORT", ""),

		MaxConcurrency:      getEnvInt("MAX_CONCURRENCY", 2),
		RecomputeIntervalMs: getEnvInt("RECOMPUTE_INTERVAL_MS", 50),
		MaxRetries:          getEnvInt("MAX_RETRIES", 3),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// DefaultFilterSettings returns the settings a fresh or reset session starts with.
func (c *Config) DefaultFilterSettings() models.FilterSettings {
	return models.FilterSettings{
		PriceRange: [2]float64{c.DefaultPriceMin, c.DefaultPriceMax},
		Heatmap:    c.DefaultHeatmap,
		Clustering: c.DefaultClustering,
		Radius:     c.DefaultRadius,
	}.Sanitize()
}

// Viewport parses InitialViewport. ok is false when it is unset or malformed.
func (c *Config) Viewport() (models.ViewportBounds, bool) {
	parts := strings.Split(c.InitialViewport, ",")
	if len(parts) != 4 {
		return models.ViewportBounds{}, false
	}

	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.ViewportBounds{}, false
		}
		vals[i] = f
	}
	if vals[0] > vals[1] {
		return models.ViewportBounds{}, false
	}

	return models.ViewportBounds{South: vals[0], North: vals[1], West: vals[2], East: vals[3]}, true
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
