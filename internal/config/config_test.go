package config

import (
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestLoadConfig(t *testing.T) {
	if err := os.Setenv("REGISTRY_ADDRESS", "0xeE156D8ea7b96a5524CcC3CF9283ab85E80E9534"); err != nil {
		t.Fatalf("Failed to set REGISTRY_ADDRESS: %v", err)
	}
	if err := os.Setenv("SERVER_PORT", "9090"); err != nil {
		t.Fatalf("Failed to set SERVER_PORT: %v", err)
	}
	if err := os.Setenv("POSTGRES_HOST", "testhost"); err != nil {
		t.Fatalf("Failed to set POSTGRES_HOST: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("REGISTRY_ADDRESS")
		_ = os.Unsetenv("SERVER_PORT")
		_ = os.Unsetenv("POSTGRES_HOST")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}

	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}

	want := common.HexToAddress("0xeE156D8ea7b96a5524CcC3CF9283ab85E80E9534")
	if cfg.Registry.Registry != want {
		t.Errorf("Registry.Registry = %v, want %v", cfg.Registry.Registry, want)
	}
}

func TestLoadConfigRequiresRegistry(t *testing.T) {
	_ = os.Unsetenv("REGISTRY_ADDRESS")

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() expected error when REGISTRY_ADDRESS is unset")
	}
}

func TestParseTokenFeeds(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantLen int
		wantErr bool
	}{
		{
			name:    "empty input yields empty map",
			raw:     "",
			wantLen: 0,
		},
		{
			name:    "single pair",
			raw:     "0x6eaf19b2fc24552925db245f9ff613157a7dbb4c:0x51d947b18f546696c31d9a1c81b55d84e6d8e959",
			wantLen: 1,
		},
		{
			name: "multiple pairs with whitespace",
			raw: "0x6eaf19b2fc24552925db245f9ff613157a7dbb4c:0x51d947b18f546696c31d9a1c81b55d84e6d8e959, " +
				"0xb8ce59fc3717ada4c02eadf9682a9e934f625ebb:0x70b77fcdbe2293423e41add2fb599808396807bc",
			wantLen: 2,
		},
		{
			name:    "missing separator",
			raw:     "0x6eaf19b2fc24552925db245f9ff613157a7dbb4c",
			wantErr: true,
		},
		{
			name:    "invalid address",
			raw:     "nothex:0x51d947b18f546696c31d9a1c81b55d84e6d8e959",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feeds, err := parseTokenFeeds(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("parseTokenFeeds() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTokenFeeds() error = %v", err)
			}
			if len(feeds) != tt.wantLen {
				t.Errorf("parseTokenFeeds() len = %d, want %d", len(feeds), tt.wantLen)
			}
		})
	}
}

func TestTokenFeedKeysAreLowercase(t *testing.T) {
	feeds, err := parseTokenFeeds("0x6EAF19B2FC24552925DB245F9FF613157A7DBB4C:0x51d947b18f546696c31d9a1c81b55d84e6d8e959")
	if err != nil {
		t.Fatalf("parseTokenFeeds() error = %v", err)
	}
	if _, ok := feeds["0x6eaf19b2fc24552925db245f9ff613157a7dbb4c"]; !ok {
		t.Error("expected lowercase key in feed map")
	}
}
