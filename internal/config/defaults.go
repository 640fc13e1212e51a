package config

// Default returns a config populated with default values.
func Default() Config {
	return Config{
		Paths: Paths{
			StorageDir: "~/.local/share/archivist/storage",
			LogDir:     "~/.local/share/archivist/logs",
			APIBind:    "127.0.0.1:7487",
		},
		Pipeline: Pipeline{
			Workers:                4,
			PollInterval:           5,
			ErrorRetryInterval:     10,
			LeaseDuration:          120,
			HeartbeatInterval:      30,
			MaxRetries:             3,
			RetryBackoffInitial:    60,
			RetryBackoffMultiplier: 2.0,
			RetryBackoffMax:        3600,
			ConfidenceThreshold:    70,
			CompletenessThreshold:  60,
		},
		OCR: OCR{
			TesseractBinary:          "tesseract",
			Language:                 "eng",
			LocalConfidenceThreshold: 60,
			NativeTextMinChars:       32,
			CloudBaseURL:             "",
			CloudAPIKey:              "",
			CloudModel:               "vision-ocr-1",
			CloudTimeout:             120,
			CloudCostPerPage:         0.0015,
		},
		Embedder: Embedder{
			BaseURL:      "http://127.0.0.1:11434",
			APIKey:       "",
			Model:        "nomic-embed-text",
			Timeout:      60,
			ChunkSize:    1200,
			ChunkOverlap: 200,
		},
		Classify: Classify{
			BaseURL: "",
			APIKey:  "",
			Model:   "classify-1",
			Timeout: 60,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
