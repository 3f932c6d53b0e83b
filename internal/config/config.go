package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        App        `mapstructure:"app"`
	AI         AI         `mapstructure:"ai"`
	Pipeline   Pipeline   `mapstructure:"pipeline"`
	Similarity Similarity `mapstructure:"similarity"`
	Vector     Vector     `mapstructure:"vector"`
	Store      Store      `mapstructure:"store"`
	Search     Search     `mapstructure:"search"`
	Server     Server     `mapstructure:"server"`
}

// App holds general application configuration
type App struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	DataDir  string `mapstructure:"data_dir"`
}

// AI holds LLM provider configuration
type AI struct {
	Provider string       `mapstructure:"provider"` // gemini or mock
	Gemini   GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey              string  `mapstructure:"api_key"`
	Model               string  `mapstructure:"model"`
	Timeout             string  `mapstructure:"timeout"`
	MaxTokens           int32   `mapstructure:"max_tokens"`
	Temperature         float32 `mapstructure:"temperature"`
	EmbeddingModel      string  `mapstructure:"embedding_model"`
	EmbeddingTimeout    string  `mapstructure:"embedding_timeout"`
	EmbeddingDimensions int     `mapstructure:"embedding_dimensions"`
}

// Pipeline holds the research pipeline knobs
type Pipeline struct {
	MaxConcurrentJobs  int    `mapstructure:"max_concurrent_jobs"`
	FetcherParallelism int    `mapstructure:"fetcher_parallelism"`
	AggregatorShards   int    `mapstructure:"aggregator_shards"`
	DiscoveryTimeout   string `mapstructure:"discovery_timeout"`
	FetchTimeout       string `mapstructure:"fetch_timeout"`
	LLMTimeout         string `mapstructure:"llm_timeout"`
	VectorTimeout      string `mapstructure:"vector_timeout"`
	JobDeadline        string `mapstructure:"job_deadline"`
	MaxCandidates      int    `mapstructure:"max_candidates"`
	SelectorMaxPages   int    `mapstructure:"selector_max_pages"`
	PerPageChars       int    `mapstructure:"per_page_chars"`
	AggregateChars     int    `mapstructure:"aggregate_chars"`
	PerPageBytes       int64  `mapstructure:"per_page_bytes"`
	StalenessDays      int    `mapstructure:"staleness_days"`
	UserAgent          string `mapstructure:"user_agent"`
}

// SimilarityWeights holds the structured-scoring field weights
type SimilarityWeights struct {
	Industry      float64 `mapstructure:"industry"`
	BusinessModel float64 `mapstructure:"business_model"`
	TargetMarket  float64 `mapstructure:"target_market"`
	KeyServices   float64 `mapstructure:"key_services"`
	TechStack     float64 `mapstructure:"tech_stack"`
}

// Similarity holds similarity discovery configuration
type Similarity struct {
	Threshold      float64           `mapstructure:"threshold"`
	TopK           int               `mapstructure:"top_k"`
	LLMCandidates  int               `mapstructure:"llm_candidates"`
	ResearchBudget int               `mapstructure:"research_budget"`
	Weights        SimilarityWeights `mapstructure:"weights"`
}

// Vector holds vector store configuration
type Vector struct {
	Backend     string       `mapstructure:"backend"` // chromem, qdrant, or pgvector
	Dimension   int          `mapstructure:"dimension"`
	Collection  string       `mapstructure:"collection"`
	Path        string       `mapstructure:"path"` // chromem persistence dir ("" = in-memory)
	Qdrant      QdrantConfig `mapstructure:"qdrant"`
	DatabaseURL string       `mapstructure:"database_url"` // pgvector DSN
}

// QdrantConfig holds qdrant connection configuration
type QdrantConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
	UseTLS bool   `mapstructure:"use_tls"`
}

// Store holds document store configuration
type Store struct {
	Path    string `mapstructure:"path"`
	Timeout string `mapstructure:"timeout"`
}

// Search holds search provider configuration
type Search struct {
	EnabledProviders []string        `mapstructure:"enabled_providers"`
	MaxResults       int             `mapstructure:"max_results"`
	Timeout          string          `mapstructure:"timeout"`
	Language         string          `mapstructure:"language"`
	CacheTTL         string          `mapstructure:"cache_ttl"`
	Providers        SearchProviders `mapstructure:"providers"`
}

// SearchProviders holds configuration for all search providers
type SearchProviders struct {
	Google     GoogleSearchConfig `mapstructure:"google"`
	SerpAPI    SerpAPIConfig      `mapstructure:"serpapi"`
	DuckDuckGo DuckDuckGoConfig   `mapstructure:"duckduckgo"`
}

// GoogleSearchConfig holds Google Custom Search configuration
type GoogleSearchConfig struct {
	APIKey        string `mapstructure:"api_key"`
	SearchID      string `mapstructure:"search_id"`
	RatePerMinute int    `mapstructure:"rate_per_minute"`
}

// SerpAPIConfig holds SerpAPI configuration
type SerpAPIConfig struct {
	APIKey        string `mapstructure:"api_key"`
	RatePerMinute int    `mapstructure:"rate_per_minute"`
}

// DuckDuckGoConfig holds DuckDuckGo configuration
type DuckDuckGoConfig struct {
	RatePerMinute int `mapstructure:"rate_per_minute"`
}

// Server holds the HTTP facade configuration
type Server struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	// Configure viper
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".prospect")
		viper.SetConfigType("yaml")
	}

	// Set defaults
	setDefaults()

	// Bind environment variables
	bindEnvironmentVariables()

	// Enable automatic environment variable reading
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into struct
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply post-processing
	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.data_dir", ".prospect")

	// AI defaults
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash-preview-05-20")
	viper.SetDefault("ai.gemini.timeout", "60s")
	viper.SetDefault("ai.gemini.max_tokens", 8192)
	viper.SetDefault("ai.gemini.temperature", 0.2)
	viper.SetDefault("ai.gemini.embedding_model", "text-embedding-004")
	viper.SetDefault("ai.gemini.embedding_timeout", "30s")
	viper.SetDefault("ai.gemini.embedding_dimensions", 1024)

	// Pipeline defaults
	viper.SetDefault("pipeline.max_concurrent_jobs", 3)
	viper.SetDefault("pipeline.fetcher_parallelism", 10)
	viper.SetDefault("pipeline.aggregator_shards", 4)
	viper.SetDefault("pipeline.discovery_timeout", "60s")
	viper.SetDefault("pipeline.fetch_timeout", "15s")
	viper.SetDefault("pipeline.llm_timeout", "60s")
	viper.SetDefault("pipeline.vector_timeout", "10s")
	viper.SetDefault("pipeline.job_deadline", "8m")
	viper.SetDefault("pipeline.max_candidates", 500)
	viper.SetDefault("pipeline.selector_max_pages", 10)
	viper.SetDefault("pipeline.per_page_chars", 10000)
	viper.SetDefault("pipeline.aggregate_chars", 500000)
	viper.SetDefault("pipeline.per_page_bytes", 2*1024*1024)
	viper.SetDefault("pipeline.staleness_days", 30)
	viper.SetDefault("pipeline.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")

	// Similarity defaults
	viper.SetDefault("similarity.threshold", 0.70)
	viper.SetDefault("similarity.top_k", 20)
	viper.SetDefault("similarity.llm_candidates", 10)
	viper.SetDefault("similarity.research_budget", 3)
	viper.SetDefault("similarity.weights.industry", 0.35)
	viper.SetDefault("similarity.weights.business_model", 0.15)
	viper.SetDefault("similarity.weights.target_market", 0.15)
	viper.SetDefault("similarity.weights.key_services", 0.20)
	viper.SetDefault("similarity.weights.tech_stack", 0.15)

	// Vector defaults
	viper.SetDefault("vector.backend", "chromem")
	viper.SetDefault("vector.dimension", 1024)
	viper.SetDefault("vector.collection", "companies")
	viper.SetDefault("vector.path", "")
	viper.SetDefault("vector.qdrant.host", "localhost")
	viper.SetDefault("vector.qdrant.port", 6334)
	viper.SetDefault("vector.qdrant.use_tls", false)

	// Store defaults
	viper.SetDefault("store.path", ".prospect")
	viper.SetDefault("store.timeout", "5s")

	// Search defaults
	viper.SetDefault("search.enabled_providers", []string{"duckduckgo"})
	viper.SetDefault("search.max_results", 10)
	viper.SetDefault("search.timeout", "15s")
	viper.SetDefault("search.language", "en")
	viper.SetDefault("search.cache_ttl", "30m")
	viper.SetDefault("search.providers.google.rate_per_minute", 60)
	viper.SetDefault("search.providers.serpapi.rate_per_minute", 60)
	viper.SetDefault("search.providers.duckduckgo.rate_per_minute", 30)

	// Server defaults
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8173)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "0s") // unlimited; SSE streams stay open
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	// Gemini API key - support multiple formats
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	// Google Custom Search - support multiple formats
	bindEnvKeys("search.providers.google.api_key", []string{
		"GOOGLE_CUSTOM_SEARCH_API_KEY",
		"GOOGLE_CSE_API_KEY",
		"GOOGLE_SEARCH_API_KEY",
	})

	bindEnvKeys("search.providers.google.search_id", []string{
		"GOOGLE_CUSTOM_SEARCH_ID",
		"GOOGLE_CSE_ID",
		"GOOGLE_SEARCH_ENGINE_ID",
	})

	// SerpAPI
	bindEnvKeys("search.providers.serpapi.api_key", []string{
		"SERPAPI_API_KEY",
		"SERPAPI_KEY",
	})

	// Qdrant
	bindEnvKeys("vector.qdrant.host", []string{
		"QDRANT_HOST",
	})
	bindEnvKeys("vector.qdrant.api_key", []string{
		"QDRANT_API_KEY",
	})

	// pgvector DSN
	bindEnvKeys("vector.database_url", []string{
		"DATABASE_URL",
		"PGVECTOR_URL",
	})

	// General settings
	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"PROSPECT_DEBUG",
	})

	bindEnvKeys("ai.provider", []string{
		"PROSPECT_AI_PROVIDER",
	})

	bindEnvKeys("vector.backend", []string{
		"PROSPECT_VECTOR_BACKEND",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	// Expand paths
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	if config.Store.Path != "" {
		config.Store.Path = expandPath(config.Store.Path)
	}
	if config.Vector.Path != "" {
		config.Vector.Path = expandPath(config.Vector.Path)
	}

	// Validate durations
	durations := map[string]string{
		"ai.gemini.timeout":           config.AI.Gemini.Timeout,
		"ai.gemini.embedding_timeout": config.AI.Gemini.EmbeddingTimeout,
		"pipeline.discovery_timeout":  config.Pipeline.DiscoveryTimeout,
		"pipeline.fetch_timeout":      config.Pipeline.FetchTimeout,
		"pipeline.llm_timeout":        config.Pipeline.LLMTimeout,
		"pipeline.vector_timeout":     config.Pipeline.VectorTimeout,
		"pipeline.job_deadline":       config.Pipeline.JobDeadline,
		"store.timeout":               config.Store.Timeout,
		"search.timeout":              config.Search.Timeout,
		"search.cache_ttl":            config.Search.CacheTTL,
		"server.read_timeout":         config.Server.ReadTimeout,
		"server.write_timeout":        config.Server.WriteTimeout,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures required configuration is present
func validateConfig(config *Config) error {
	var errors []string

	switch config.AI.Provider {
	case "gemini":
		if config.AI.Gemini.APIKey == "" {
			errors = append(errors, "Gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file.\nGet your API key from: https://makersuite.google.com/app/apikey")
		}
	case "mock":
		// No credentials needed
	default:
		errors = append(errors, fmt.Sprintf("Unknown AI provider: %s. Supported: gemini, mock", config.AI.Provider))
	}

	switch config.Vector.Backend {
	case "chromem":
		// No credentials needed
	case "qdrant":
		if config.Vector.Qdrant.Host == "" {
			errors = append(errors, "Qdrant backend requires a host. Set QDRANT_HOST or vector.qdrant.host")
		}
	case "pgvector":
		if config.Vector.DatabaseURL == "" {
			errors = append(errors, "pgvector backend requires a DSN. Set DATABASE_URL or vector.database_url")
		}
	default:
		errors = append(errors, fmt.Sprintf("Unknown vector backend: %s. Supported: chromem, qdrant, pgvector", config.Vector.Backend))
	}

	if config.Vector.Dimension <= 0 {
		errors = append(errors, "vector.dimension must be positive")
	}

	if config.Pipeline.SelectorMaxPages < 5 || config.Pipeline.SelectorMaxPages > 50 {
		errors = append(errors, fmt.Sprintf("pipeline.selector_max_pages must be between 5 and 50, got %d", config.Pipeline.SelectorMaxPages))
	}

	for _, p := range config.Search.EnabledProviders {
		switch p {
		case "google":
			if config.Search.Providers.Google.APIKey == "" || config.Search.Providers.Google.SearchID == "" {
				errors = append(errors, "Google Custom Search requires both API key and Search ID. Set GOOGLE_CUSTOM_SEARCH_API_KEY and GOOGLE_CUSTOM_SEARCH_ID")
			}
		case "serpapi":
			if config.Search.Providers.SerpAPI.APIKey == "" {
				errors = append(errors, "SerpAPI requires API key. Set SERPAPI_API_KEY environment variable")
			}
		case "duckduckgo", "mock":
			// No validation needed for these providers
		default:
			errors = append(errors, fmt.Sprintf("Unknown search provider: %s. Supported: google, serpapi, duckduckgo, mock", p))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Duration parses one of the validated duration strings, falling back to
// def when the string is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// Convenience getters for commonly used configuration values
func GetApp() App               { return Get().App }
func GetAI() AI                 { return Get().AI }
func GetPipeline() Pipeline     { return Get().Pipeline }
func GetSimilarity() Similarity { return Get().Similarity }
func GetVector() Vector         { return Get().Vector }
func GetStore() Store           { return Get().Store }
func GetSearch() Search         { return Get().Search }
func GetServer() Server         { return Get().Server }

// Specific convenience getters for frequently accessed values
func GetGeminiAPIKey() string { return Get().AI.Gemini.APIKey }
func GetGeminiModel() string  { return Get().AI.Gemini.Model }
func IsDebugMode() bool       { return Get().App.Debug }

// Staleness returns the research staleness TTL as a duration.
func (p Pipeline) Staleness() time.Duration {
	return time.Duration(p.StalenessDays) * 24 * time.Hour
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
