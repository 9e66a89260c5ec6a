package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		HostID:    "test-host-abc",
		BaseDir:   "/home/user/.local/share/fhirsync",
		LogDir:    "/home/user/.local/share/fhirsync/log",
		LogFormat: "json",
		Database:  DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/fhirsync/db", Encrypted: true},
		Encryption: EncryptionConfig{
			PublicKeyPath:  "/home/user/.local/share/fhirsync/keys/fhirsync.pub",
			PrivateKeyPath: "/home/user/.local/share/fhirsync/keys/fhirsync.key",
		},
		Upload: UploadConfig{Mode: "url", HTTPVerbForCreate: "POST", BundleSize: 20},
		Remote: RemoteConfig{Type: "s3", S3Bucket: "fhir", S3Prefix: "clinic-a", S3Region: "eu-west-1"},
		Import: ImportConfig{Ignore: []string{"*.log", ".git"}},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.HostID != original.HostID {
		t.Errorf("HostID = %q, want %q", got.HostID, original.HostID)
	}
	if got.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want %q", got.LogFormat, "json")
	}
	if got.Database != original.Database {
		t.Errorf("Database = %+v, want %+v", got.Database, original.Database)
	}
	if got.Encryption.PrivateKeyPath != original.Encryption.PrivateKeyPath {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", got.Encryption.PrivateKeyPath, original.Encryption.PrivateKeyPath)
	}
	if got.Upload != original.Upload {
		t.Errorf("Upload = %+v, want %+v", got.Upload, original.Upload)
	}
	if got.Remote != original.Remote {
		t.Errorf("Remote = %+v, want %+v", got.Remote, original.Remote)
	}
	if len(got.Import.Ignore) != 2 {
		t.Fatalf("len(Import.Ignore) = %d, want 2", len(got.Import.Ignore))
	}
}

func TestManager_Read_Sections(t *testing.T) {
	input := `
host_id = "h1"
log_format = "text"

[database]
type = "memory"

[upload]
mode = "bundle"
http_verb_for_create = "PUT"
bundle_size = 3

[remote]
type = "filesystem"
fs_root = "/srv/remote"
`
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cfg.Database.Type != "memory" {
		t.Errorf("Database.Type = %q, want %q", cfg.Database.Type, "memory")
	}
	if cfg.Database.Encrypted {
		t.Error("Database.Encrypted = true, want false when omitted")
	}
	if cfg.Upload.BundleSize != 3 {
		t.Errorf("Upload.BundleSize = %d, want 3", cfg.Upload.BundleSize)
	}
	if cfg.Remote.FSRoot != "/srv/remote" {
		t.Errorf("Remote.FSRoot = %q, want %q", cfg.Remote.FSRoot, "/srv/remote")
	}
}

func TestManager_Read_Invalid(t *testing.T) {
	m := &Manager{}
	if _, err := m.Read(strings.NewReader("host_id = ")); err == nil {
		t.Fatal("Read() expected error for malformed TOML")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("host-1", "/data/fhirsync")

	if cfg.HostID != "host-1" {
		t.Errorf("HostID = %q, want %q", cfg.HostID, "host-1")
	}
	if cfg.LogDir != "/data/fhirsync/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/fhirsync/log")
	}
	if cfg.Database.DataDir != "/data/fhirsync/db" {
		t.Errorf("Database.DataDir = %q, want %q", cfg.Database.DataDir, "/data/fhirsync/db")
	}
	if cfg.Encryption.PublicKeyPath != "/data/fhirsync/keys/fhirsync.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, "/data/fhirsync/keys/fhirsync.pub")
	}
	if cfg.Upload.HTTPVerbForCreate != "PUT" {
		t.Errorf("Upload.HTTPVerbForCreate = %q, want %q", cfg.Upload.HTTPVerbForCreate, "PUT")
	}
	if cfg.Upload.BundleSize != 500 {
		t.Errorf("Upload.BundleSize = %d, want 500", cfg.Upload.BundleSize)
	}
	if cfg.Remote.FSRoot != "/data/fhirsync/remote" {
		t.Errorf("Remote.FSRoot = %q, want %q", cfg.Remote.FSRoot, "/data/fhirsync/remote")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fhirsync.toml")
		cfg := NewConfig("h1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fhirsync.toml")
		cfg := NewConfig("h1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fhirsync.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.HostID != "read-test" {
			t.Errorf("HostID = %q, want %q", got.HostID, "read-test")
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/fhirsync.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
