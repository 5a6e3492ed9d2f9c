package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type CacheConfig struct {
	MaxSize    int `yaml:"max_size"`
	TTLSeconds int `yaml:"ttl_seconds"`
}

type RateLimitConfig struct {
	Enabled   bool `yaml:"enabled"`
	PerMinute int  `yaml:"per_minute"`
}

type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

type Config struct {
	LogFile       string          `yaml:"log"`
	DocRoot       string          `yaml:"doc_root"`
	StateFile     string          `yaml:"state_file"`
	AllowedExts   []string        `yaml:"allowed_exts"`
	MaxFileMB     int             `yaml:"max_file_mb"`
	MergeEventsMs int             `yaml:"write_debounce_ms"`
	ChunkSize     int             `yaml:"chunk_size"`
	ChunkOverlap  int             `yaml:"chunk_overlap"`
	RequestSize   int             `yaml:"request_size"`
	Results       int             `yaml:"results"`
	ServerAddr    string          `yaml:"server_addr"`
	HTTPAddr      string          `yaml:"http_addr"`
	ChromaAddr    string          `yaml:"chroma_addr"`
	Collection    string          `yaml:"collection"`
	Cache         CacheConfig     `yaml:"cache"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Ollama        *OllamaConfig   `yaml:"ollama"`
	OpenAI        *struct {
		Model  string `yaml:"model"`
		ApiKey string `yaml:"api_key"`
	} `yaml:"open_ai"`
	Gemini *struct {
		Model  string `yaml:"model"`
		ApiKey string `yaml:"api_key"`
	} `yaml:"gemini"`
}

func readConfig(cfgPath string) (*Config, error) {
	cfgFile, err := os.Open(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open config file: %w", err)
	}
	defer cfgFile.Close()

	cfg := &Config{}
	dec := yaml.NewDecoder(cfgFile)
	err = dec.Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StateFile == "" {
		c.StateFile = "state/ingest_state.json"
	}
	if len(c.AllowedExts) == 0 {
		c.AllowedExts = []string{".pdf", ".txt", ".md"}
	}
	if c.MaxFileMB == 0 {
		c.MaxFileMB = 80
	}
	if c.MergeEventsMs == 0 {
		c.MergeEventsMs = 1000
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 3000
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 400
	}
	if c.Results == 0 {
		c.Results = 6
	}
	if c.Collection == "" {
		c.Collection = "docs"
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 100
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 3600
	}
	if c.RateLimit.PerMinute == 0 {
		c.RateLimit.PerMinute = 60
	}
}
