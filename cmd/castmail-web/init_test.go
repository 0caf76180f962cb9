package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/foxzi/castmail/internal/web/config"
)

func TestGenerateRandomString(t *testing.T) {
	for _, length := range []int{8, 32, 48} {
		if got := generateRandomString(length); len(got) != length {
			t.Errorf("generateRandomString(%d) returned string of length %d", length, len(got))
		}
	}

	if generateRandomString(32) == generateRandomString(32) {
		t.Error("generateRandomString should generate unique strings")
	}
}

func TestInitWritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()

	initBackendURL = ""
	initListenAddr = ":9000"
	initDataDir = filepath.Join(dir, "data")
	initOutput = filepath.Join(dir, "web.yaml")
	initForce = false
	defer func() { initBackendURL, initOutput = "", "web.yaml" }()

	var out bytes.Buffer
	initCmd.SetOut(&out)
	initCmd.SetIn(strings.NewReader("http://castmail.test/api\n"))

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit() error = %v", err)
	}

	cfg, err := config.Load(initOutput)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if cfg.Backend.BaseURL != "http://castmail.test/api" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if len(cfg.Session.Secret) != 48 {
		t.Errorf("secret length = %d, want 48", len(cfg.Session.Secret))
	}
	if cfg.History.Path != filepath.Join(dir, "data", "history.db") {
		t.Errorf("History path = %q", cfg.History.Path)
	}

	if err := runInit(initCmd, nil); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected refusal to overwrite, got %v", err)
	}
}
