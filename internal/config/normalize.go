package config

import "strings"

func (c *Config) normalize() error {
	var err error
	if c.Paths.StorageDir, err = expandPath(c.Paths.StorageDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.OCR.TesseractBinary = strings.TrimSpace(c.OCR.TesseractBinary)
	c.OCR.Language = strings.TrimSpace(c.OCR.Language)
	c.OCR.CloudBaseURL = strings.TrimRight(strings.TrimSpace(c.OCR.CloudBaseURL), "/")
	c.Embedder.BaseURL = strings.TrimRight(strings.TrimSpace(c.Embedder.BaseURL), "/")
	c.Classify.BaseURL = strings.TrimRight(strings.TrimSpace(c.Classify.BaseURL), "/")

	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	return nil
}
