package core

import (
	"time"
)

type Config struct {
	Catalog  CatalogConfig
	Resolver ResolverConfig
	Lyrics   LyricsConfig
	LLM      LLMConfig
	Sink     SinkConfig
	Server   ServerConfig
	Log      LogConfig
	App      AppConfig
}

type CatalogConfig struct {
	ClientID         string
	ClientSecret     string
	TrendingPlaylist string
	MaxResults       int
}

type ResolverConfig struct {
	Endpoints      []string
	DirectoryURL   string
	AttemptTimeout time.Duration
	HostCacheTTL   time.Duration
}

type LyricsConfig struct {
	BaseURL   string
	Timeout   time.Duration
	CacheSize int
}

type LLMConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTitles int
}

type SinkConfig struct {
	Host     string
	Port     int
	Password string
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestsPerMin int
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	SkipDebounce   time.Duration
	ResolvedCache  int
	ProgressPeriod time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			MaxResults: 20,
		},
		Resolver: ResolverConfig{
			Endpoints: []string{
				"https://pipedapi.kavin.rocks",
				"https://pipedapi.adminforge.de",
				"https://api.piped.private.coffee",
			},
			DirectoryURL:   "https://piped-instances.kavin.rocks/",
			AttemptTimeout: 4 * time.Second,
			HostCacheTTL:   30 * time.Minute,
		},
		Lyrics: LyricsConfig{
			BaseURL:   "https://lrclib.net",
			Timeout:   5 * time.Second,
			CacheSize: 256,
		},
		LLM: LLMConfig{
			Provider:  "none",
			Model:     "",
			MaxTitles: 5,
		},
		Sink: SinkConfig{
			Host: "localhost",
			Port: 6600,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			RequestsPerMin: 120,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			SkipDebounce:   time.Second,
			ResolvedCache:  1000,
			ProgressPeriod: time.Second,
		},
	}
}
