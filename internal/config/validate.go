package config

import "fmt"

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if c.Paths.StorageDir == "" {
		return fmt.Errorf("paths.storage_dir is required")
	}
	if c.Paths.LogDir == "" {
		return fmt.Errorf("paths.log_dir is required")
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.PollInterval < 1 {
		return fmt.Errorf("pipeline.poll_interval must be at least 1 second, got %d", c.Pipeline.PollInterval)
	}
	if c.Pipeline.LeaseDuration < 1 {
		return fmt.Errorf("pipeline.lease_duration must be at least 1 second, got %d", c.Pipeline.LeaseDuration)
	}
	if c.Pipeline.HeartbeatInterval < 1 {
		return fmt.Errorf("pipeline.heartbeat_interval must be at least 1 second, got %d", c.Pipeline.HeartbeatInterval)
	}
	if c.Pipeline.HeartbeatInterval >= c.Pipeline.LeaseDuration {
		return fmt.Errorf("pipeline.heartbeat_interval (%d) must be shorter than pipeline.lease_duration (%d)",
			c.Pipeline.HeartbeatInterval, c.Pipeline.LeaseDuration)
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries must not be negative, got %d", c.Pipeline.MaxRetries)
	}
	if c.Pipeline.RetryBackoffInitial < 0 {
		return fmt.Errorf("pipeline.retry_backoff_initial must not be negative, got %d", c.Pipeline.RetryBackoffInitial)
	}
	if c.Pipeline.RetryBackoffMultiplier < 1 {
		return fmt.Errorf("pipeline.retry_backoff_multiplier must be at least 1, got %g", c.Pipeline.RetryBackoffMultiplier)
	}
	if c.Pipeline.RetryBackoffMax < c.Pipeline.RetryBackoffInitial {
		return fmt.Errorf("pipeline.retry_backoff_max (%d) must not be below retry_backoff_initial (%d)",
			c.Pipeline.RetryBackoffMax, c.Pipeline.RetryBackoffInitial)
	}
	if err := validateScore("pipeline.confidence_threshold", c.Pipeline.ConfidenceThreshold); err != nil {
		return err
	}
	if err := validateScore("pipeline.completeness_threshold", c.Pipeline.CompletenessThreshold); err != nil {
		return err
	}

	if c.OCR.TesseractBinary == "" {
		return fmt.Errorf("ocr.tesseract_binary is required")
	}
	if err := validateScore("ocr.local_confidence_threshold", c.OCR.LocalConfidenceThreshold); err != nil {
		return err
	}
	if c.OCR.NativeTextMinChars < 0 {
		return fmt.Errorf("ocr.native_text_min_chars must not be negative, got %d", c.OCR.NativeTextMinChars)
	}
	if c.OCR.CloudBaseURL != "" && c.OCR.CloudTimeout < 1 {
		return fmt.Errorf("ocr.cloud_timeout must be at least 1 second, got %d", c.OCR.CloudTimeout)
	}

	if c.Embedder.BaseURL == "" {
		return fmt.Errorf("embedder.base_url is required")
	}
	if c.Embedder.Timeout < 1 {
		return fmt.Errorf("embedder.timeout must be at least 1 second, got %d", c.Embedder.Timeout)
	}
	if c.Embedder.ChunkSize < 1 {
		return fmt.Errorf("embedder.chunk_size must be at least 1, got %d", c.Embedder.ChunkSize)
	}
	if c.Embedder.ChunkOverlap < 0 || c.Embedder.ChunkOverlap >= c.Embedder.ChunkSize {
		return fmt.Errorf("embedder.chunk_overlap must be in [0, chunk_size), got %d", c.Embedder.ChunkOverlap)
	}

	if c.Classify.BaseURL != "" && c.Classify.Timeout < 1 {
		return fmt.Errorf("classify.timeout must be at least 1 second, got %d", c.Classify.Timeout)
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}

	return nil
}

func validateScore(name string, value int) error {
	if value < 0 || value > 100 {
		return fmt.Errorf("%s must be in [0, 100], got %d", name, value)
	}
	return nil
}
