package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DELPHI_API_KEY", "DELPHI_API_BASE_URI", "DELPHI_API_SCHEME",
		"DEEPGRAM_API_KEY", "AUDIO_BACKEND", "PROXY_ADDR", "EXCHANGE_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	config, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.DelphiAPIScheme != "https" {
		t.Fatalf("expected https scheme, got %q", config.DelphiAPIScheme)
	}
	if config.AudioBackend != AudioBackendMiniaudio {
		t.Fatalf("expected miniaudio backend, got %q", config.AudioBackend)
	}
	if config.ProxyAddr != ":3000" {
		t.Fatalf("expected :3000, got %q", config.ProxyAddr)
	}
	if config.ExchangeTimeout != 0 {
		t.Fatalf("expected no exchange timeout, got %v", config.ExchangeTimeout)
	}
	if config.DelphiAPIKey != "" || config.DelphiAPIBaseURI != "" {
		t.Fatalf("expected missing credentials to load as empty")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DELPHI_API_KEY", "key")
	t.Setenv("DELPHI_API_BASE_URI", "api.example.com")
	t.Setenv("DELPHI_API_SCHEME", "http")
	t.Setenv("AUDIO_BACKEND", "none")
	t.Setenv("PROXY_ADDR", "127.0.0.1:8080")
	t.Setenv("EXCHANGE_TIMEOUT", "45s")

	config, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.DelphiAPIKey != "key" || config.DelphiAPIBaseURI != "api.example.com" {
		t.Fatalf("unexpected credentials: %+v", config)
	}
	if config.DelphiAPIScheme != "http" || config.AudioBackend != AudioBackendNone {
		t.Fatalf("unexpected overrides: %+v", config)
	}
	if config.ProxyAddr != "127.0.0.1:8080" || config.ExchangeTimeout != 45*time.Second {
		t.Fatalf("unexpected overrides: %+v", config)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{key: "DELPHI_API_SCHEME", value: "ftp"},
		{key: "AUDIO_BACKEND", value: "alsa"},
		{key: "EXCHANGE_TIMEOUT", value: "soon"},
		{key: "EXCHANGE_TIMEOUT", value: "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
