package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type AudioBackend string

const (
	AudioBackendMiniaudio AudioBackend = "miniaudio"
	AudioBackendPortaudio AudioBackend = "portaudio"
	AudioBackendNone      AudioBackend = "none"
)

// Config holds the settings shared by the binaries.
type Config struct {
	DelphiAPIKey     string
	DelphiAPIBaseURI string
	DelphiAPIScheme  string
	DeepgramAPIKey   string
	AudioBackend     AudioBackend
	ProxyAddr        string
	ExchangeTimeout  time.Duration
}

// Load reads configuration from the environment, loading a .env file first
// if present. Missing Delphi credentials are not an error here; every request
// made with them fails instead.
func Load() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		DelphiAPIKey:     os.Getenv("DELPHI_API_KEY"),
		DelphiAPIBaseURI: os.Getenv("DELPHI_API_BASE_URI"),
		DelphiAPIScheme:  "https",
		DeepgramAPIKey:   os.Getenv("DEEPGRAM_API_KEY"),
		AudioBackend:     AudioBackendMiniaudio,
		ProxyAddr:        ":3000",
	}

	if scheme := os.Getenv("DELPHI_API_SCHEME"); scheme != "" {
		switch scheme {
		case "http", "https":
			config.DelphiAPIScheme = scheme
		default:
			return nil, fmt.Errorf("invalid DELPHI_API_SCHEME: must be 'http' or 'https'")
		}
	}

	if backend := os.Getenv("AUDIO_BACKEND"); backend != "" {
		switch AudioBackend(backend) {
		case AudioBackendMiniaudio, AudioBackendPortaudio, AudioBackendNone:
			config.AudioBackend = AudioBackend(backend)
		default:
			return nil, fmt.Errorf("invalid AUDIO_BACKEND: must be 'miniaudio', 'portaudio' or 'none'")
		}
	}

	if addr := os.Getenv("PROXY_ADDR"); addr != "" {
		config.ProxyAddr = addr
	}

	if timeout := os.Getenv("EXCHANGE_TIMEOUT"); timeout != "" {
		t, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid EXCHANGE_TIMEOUT: %w", err)
		}
		if t < 0 {
			return nil, fmt.Errorf("invalid EXCHANGE_TIMEOUT: must not be negative")
		}
		config.ExchangeTimeout = t
	}

	return config, nil
}
