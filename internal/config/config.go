package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StorageDir string `toml:"storage_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
}

// Pipeline contains dispatcher timing, lease, and retry policy settings.
// Interval and duration values are seconds.
type Pipeline struct {
	Workers            int `toml:"workers"`
	PollInterval       int `toml:"poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	LeaseDuration      int `toml:"lease_duration"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	MaxRetries         int `toml:"max_retries"`

	// Backoff shape is policy, not contract: delay for attempt n is
	// retry_backoff_initial * retry_backoff_multiplier^(n-1), capped at
	// retry_backoff_max. A multiplier of 1 yields a flat linear schedule.
	RetryBackoffInitial    int     `toml:"retry_backoff_initial"`
	RetryBackoffMultiplier float64 `toml:"retry_backoff_multiplier"`
	RetryBackoffMax        int     `toml:"retry_backoff_max"`

	// Scores are 0-100 integers; items below either threshold after
	// categorization are routed to human review.
	ConfidenceThreshold   int `toml:"confidence_threshold"`
	CompletenessThreshold int `toml:"completeness_threshold"`
}

// OCR contains configuration for the local and cloud OCR engines.
type OCR struct {
	TesseractBinary string `toml:"tesseract_binary"`
	Language        string `toml:"language"`
	// Mean page confidence below this escalates from local to cloud OCR.
	LocalConfidenceThreshold int `toml:"local_confidence_threshold"`
	// Pages with at least this many native-layer characters skip OCR entirely.
	NativeTextMinChars int    `toml:"native_text_min_chars"`
	CloudBaseURL       string `toml:"cloud_base_url"`
	CloudAPIKey        string `toml:"cloud_api_key"`
	CloudModel         string `toml:"cloud_model"`
	CloudTimeout       int    `toml:"cloud_timeout"`
	// Per-page cost estimate recorded in the processing log for cloud OCR.
	CloudCostPerPage float64 `toml:"cloud_cost_per_page"`
}

// Embedder contains configuration for the embedding backend and chunking.
type Embedder struct {
	BaseURL      string `toml:"base_url"`
	APIKey       string `toml:"api_key"`
	Model        string `toml:"model"`
	Timeout      int    `toml:"timeout"`
	ChunkSize    int    `toml:"chunk_size"`
	ChunkOverlap int    `toml:"chunk_overlap"`
}

// Classify contains configuration for the metadata categorizer backend.
type Classify struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	Timeout int    `toml:"timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for archivist.
//
// Configuration sections by subsystem:
//   - Paths: storage/log directories and API bind address
//   - Pipeline: dispatcher workers, polling, lease, retry/backoff, review thresholds
//   - OCR: local tesseract + cloud vision escalation settings
//   - Embedder: embedding backend and text chunking
//   - Classify: metadata extraction/categorization backend
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Pipeline Pipeline `toml:"pipeline"`
	OCR      OCR      `toml:"ocr"`
	Embedder Embedder `toml:"embedder"`
	Classify Classify `toml:"classify"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/archivist/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("archivist.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StorageDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the unix socket path the daemon listens on.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "archivistd.sock")
}

// CatalogDBPath returns the path of the SQLite catalog database.
func (c *Config) CatalogDBPath() string {
	return filepath.Join(c.Paths.LogDir, "catalog.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
