package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/BuckanovNikita/cveta2/pkg/types"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{EnvHost, EnvToken, EnvUsername, EnvPassword, EnvOrganization} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing file yields empty config", func(t *testing.T) {
		clearEnv(t)
		cfg, err := Load(t.TempDir(), Overrides{})
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Cvat.Host != "" {
			t.Fatalf("host = %q", cfg.Cvat.Host)
		}
		if err := cfg.RequireHost(); !errors.Is(err, types.ErrHostNotConfigured) {
			t.Fatalf("expected ErrHostNotConfigured, got %v", err)
		}
	})

	t.Run("reads cvat section and image cache", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		writeConfig(t, dir, `cvat:
  host: https://cvat.example.com
  token: secret
  organization: acme
image_cache:
  wildlife: /data/wildlife
  traffic: /data/traffic
`)
		cfg, err := Load(dir, Overrides{})
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Cvat.Host != "https://cvat.example.com" || cfg.Cvat.Token != "secret" {
			t.Fatalf("cvat = %+v", cfg.Cvat)
		}
		if cfg.Cvat.Organization != "acme" {
			t.Fatalf("organization = %q", cfg.Cvat.Organization)
		}
		if dir, ok := cfg.CacheDir("wildlife"); !ok || dir != "/data/wildlife" {
			t.Fatalf("cache dir = %q (%v)", dir, ok)
		}
		if got := cfg.CacheProjects(); len(got) != 2 || got[0] != "traffic" {
			t.Fatalf("cache projects = %v", got)
		}
		if err := cfg.RequireHost(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("env beats file", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		writeConfig(t, dir, "cvat:\n  host: https://file.example.com\n")
		t.Setenv(EnvHost, "https://env.example.com")

		cfg, err := Load(dir, Overrides{})
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Cvat.Host != "https://env.example.com" {
			t.Fatalf("host = %q", cfg.Cvat.Host)
		}
	})

	t.Run("flag beats env and file", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		writeConfig(t, dir, "cvat:\n  host: https://file.example.com\n")
		t.Setenv(EnvHost, "https://env.example.com")

		cfg, err := Load(dir, Overrides{Host: "https://flag.example.com"})
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Cvat.Host != "https://flag.example.com" {
			t.Fatalf("host = %q", cfg.Cvat.Host)
		}
	})
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	in := Config{
		Cvat: CvatConfig{
			Host:     "https://cvat.example.com",
			Username: "alice",
			Password: "hunter2",
		},
		ImageCache: map[string]string{"wildlife": "/data/wildlife"},
	}
	if err := Save(dir, in); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("config file mode = %o, want 600", perm)
	}

	out, err := Load(dir, Overrides{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Cvat != in.Cvat {
		t.Fatalf("cvat round trip:\ngot  %+v\nwant %+v", out.Cvat, in.Cvat)
	}
	if dir, ok := out.CacheDir("wildlife"); !ok || dir != "/data/wildlife" {
		t.Fatalf("image cache round trip: %q (%v)", dir, ok)
	}
}

func TestIgnoreConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file is empty", func(t *testing.T) {
		cfg, err := LoadIgnore(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(cfg.Projects) != 0 {
			t.Fatalf("projects = %v", cfg.Projects)
		}
	})

	t.Run("add remove round trip", func(t *testing.T) {
		cfg := IgnoreConfig{Projects: map[string][]IgnoredTask{}}
		if !cfg.Add("wildlife", IgnoredTask{ID: 12, Name: "bad batch"}) {
			t.Fatal("first add should be new")
		}
		if cfg.Add("wildlife", IgnoredTask{ID: 12, Name: "renamed"}) {
			t.Fatal("duplicate add should not be new")
		}
		cfg.Add("wildlife", IgnoredTask{ID: 5})

		if err := SaveIgnore(dir, cfg); err != nil {
			t.Fatal(err)
		}
		loaded, err := LoadIgnore(dir)
		if err != nil {
			t.Fatal(err)
		}

		entries := loaded.Projects["wildlife"]
		if len(entries) != 2 || entries[0].ID != 5 || entries[1].Name != "renamed" {
			t.Fatalf("entries = %+v", entries)
		}
		ids := loaded.IgnoredIDs("wildlife")
		if _, ok := ids[12]; !ok {
			t.Fatalf("ids = %v", ids)
		}

		if !loaded.Remove("wildlife", 5) {
			t.Fatal("remove existing should report true")
		}
		if loaded.Remove("wildlife", 99) {
			t.Fatal("remove missing should report false")
		}
		loaded.Remove("wildlife", 12)
		if _, ok := loaded.Projects["wildlife"]; ok {
			t.Fatal("empty project should be dropped")
		}
	})
}
