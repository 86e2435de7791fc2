package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateSegmenter(); err != nil {
		return err
	}
	if err := c.validateWhisper(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind must be host:port: %w", err)
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.MaxFileMiB <= 0 {
		return errors.New("upload.max_file_mib must be positive")
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return errors.New("upload.allowed_extensions must include at least one extension")
	}
	return nil
}

func (c *Config) validateSegmenter() error {
	if c.Segmenter.ChunkSeconds <= 0 {
		return errors.New("segmenter.chunk_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWhisper() error {
	if c.Whisper.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/lectern/config.toml"
		}
		return fmt.Errorf("whisper.api_key is required. Set OPENAI_API_KEY env var or edit %s (create with 'lectern config init')", defaultPath)
	}
	if c.Whisper.TimeoutSeconds <= 0 {
		return errors.New("whisper.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		return errors.New("llm.base_url must be set")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	return nil
}
