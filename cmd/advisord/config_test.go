package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Provider.Name != "openai" || cfg.Provider.Model != "gpt-4o-mini" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Provider.APIKey != "sk-test" {
		t.Errorf("api key = %q, want env override", cfg.Provider.APIKey)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":9090"
  shutdown_timeout: 5s
provider:
  name: anthropic
  model: claude-sonnet-4-5
  api_key: inline-key
  initial_tpm: 30000
redis:
  addr: localhost:6379
  ttl: 24h
mongo:
  uri: mongodb://localhost:27017
  database: moneywise
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.HTTP.ShutdownTimeout.Std() != 5*time.Second {
		t.Errorf("shutdown timeout = %v", cfg.HTTP.ShutdownTimeout)
	}
	if cfg.Provider.Name != "anthropic" || cfg.Provider.APIKey != "inline-key" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Redis.TTL.Std() != 24*time.Hour {
		t.Errorf("redis ttl = %v", cfg.Redis.TTL)
	}
	if cfg.Mongo.Database != "moneywise" {
		t.Errorf("mongo database = %q", cfg.Mongo.Database)
	}
}

func TestLoadConfigAnthropicEnvKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	path := writeConfig(t, `
provider:
  name: anthropic
  model: claude-sonnet-4-5
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider.APIKey != "sk-ant-test" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cases := map[string]string{
		"unknown provider": `
provider:
  name: llamacpp
  model: m
  api_key: k
`,
		"missing model": `
provider:
  name: openai
  model: ""
  api_key: k
`,
		"missing api key": `
provider:
  name: openai
  model: gpt-4o-mini
`,
		"empty addr": `
http:
  addr: ""
provider:
  name: openai
  model: gpt-4o-mini
  api_key: k
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
