package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-finder/internal/facematch"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Cache     CacheConfig     `yaml:"cache"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Match     MatchConfig     `yaml:"match"`
	Batch     BatchConfig     `yaml:"batch"`
	Log       LogConfig       `yaml:"log"`
	Web       WebConfig       `yaml:"web"`
}

type CacheConfig struct {
	Path string `yaml:"path"` // store file; the .facedb extension is added when missing
}

type ExtractorConfig struct {
	Kind      string        `yaml:"kind"`       // http or dlib
	URL       string        `yaml:"url"`        // embedding server base URL
	ModelsDir string        `yaml:"models_dir"` // dlib model files
	RateLimit float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Timeout   time.Duration `yaml:"timeout"`
	MinScore  float64       `yaml:"min_score"`
}

type MatchConfig struct {
	Euclidean float64 `yaml:"euclidean"`
	Cosine    float64 `yaml:"cosine"`
	TopK      int     `yaml:"top_k"`
}

// Thresholds returns the configured match thresholds.
func (m MatchConfig) Thresholds() facematch.Thresholds {
	return facematch.Thresholds{Euclidean: m.Euclidean, Cosine: m.Cosine}
}

type BatchConfig struct {
	Concurrency int      `yaml:"concurrency"`
	Upsample    int      `yaml:"upsample"`
	Extensions  []string `yaml:"extensions"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type WebConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ResultCacheSize int    `yaml:"result_cache_size"`
	ReportPath      string `yaml:"report_path"`
}

// envString returns the environment variable or the default when unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envNonNegInt is envInt that also accepts zero.
func envNonNegInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat parses a non-negative float, falling back to the default.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envList splits a comma separated variable, dropping empty items.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

// Defaults returns the embedded configuration without env overrides.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

func Load() *Config {
	d := Defaults()

	return &Config{
		Cache: CacheConfig{
			Path: envString("FACE_CACHE_PATH", d.Cache.Path),
		},
		Extractor: ExtractorConfig{
			Kind:      strings.ToLower(envString("FACE_EXTRACTOR", d.Extractor.Kind)),
			URL:       envString("EMBEDDING_URL", d.Extractor.URL),
			ModelsDir: envString("DLIB_MODELS_DIR", d.Extractor.ModelsDir),
			RateLimit: envFloat("EXTRACTOR_RATE_LIMIT", d.Extractor.RateLimit),
			Timeout:   envDuration("EXTRACTOR_TIMEOUT", d.Extractor.Timeout),
			MinScore:  envFloat("EXTRACTOR_MIN_SCORE", d.Extractor.MinScore),
		},
		Match: MatchConfig{
			Euclidean: envFloat("EUCLIDEAN_THRESHOLD", d.Match.Euclidean),
			Cosine:    envFloat("COSINE_THRESHOLD", d.Match.Cosine),
			TopK:      envNonNegInt("TOP_K", d.Match.TopK),
		},
		Batch: BatchConfig{
			Concurrency: envInt("BATCH_CONCURRENCY", d.Batch.Concurrency),
			Upsample:    envNonNegInt("UPSAMPLE", d.Batch.Upsample),
			Extensions:  envList("IMAGE_EXTENSIONS", d.Batch.Extensions),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", d.Log.Level),
			Format: envString("LOG_FORMAT", d.Log.Format),
		},
		Web: WebConfig{
			Host:            envString("WEB_HOST", d.Web.Host),
			Port:            envInt("WEB_PORT", d.Web.Port),
			ResultCacheSize: envInt("RESULT_CACHE_SIZE", d.Web.ResultCacheSize),
			ReportPath:      envString("REPORT_PATH", d.Web.ReportPath),
		},
	}
}
