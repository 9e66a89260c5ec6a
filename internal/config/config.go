package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for fhirsync.
type Config struct {
	HostID     string           `toml:"host_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	LogFormat  string           `toml:"log_format"` // "text" (default) or "json"
	Database   DatabaseConfig   `toml:"database"`
	Encryption EncryptionConfig `toml:"encryption"`
	Upload     UploadConfig     `toml:"upload"`
	Remote     RemoteConfig     `toml:"remote"`
	Import     ImportConfig     `toml:"import"`
}

// DatabaseConfig represents configuration for the local resource store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type      string `toml:"type"`               // "sqlite" or "memory"
	DataDir   string `toml:"data_dir,omitempty"` // only used for type=sqlite
	Encrypted bool   `toml:"encrypted"`          // seal stored payloads with the configured encryptor
}

// EncryptionConfig holds paths to the age key pair used for the encrypted storage mode.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// UploadConfig controls how pending changes are turned into requests.
type UploadConfig struct {
	Mode              string `toml:"mode"`                 // "bundle" (default) or "url"
	HTTPVerbForCreate string `toml:"http_verb_for_create"` // "PUT" (default) or "POST"
	BundleSize        int    `toml:"bundle_size"`          // max entries per bundle; defaults to 500
}

// RemoteConfig represents configuration for the remote resource server.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type    string `toml:"type"` // "memory", "filesystem" or "s3"
	BaseURL string `toml:"base_url"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // for S3-compatible services; enables path-style addressing
	// Static credentials; when empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// ImportConfig holds settings for importing resource files.
type ImportConfig struct {
	Ignore []string `toml:"ignore"`
}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:    hostID,
		BaseDir:   baseDir,
		LogDir:    filepath.Join(baseDir, "log"),
		LogFormat: "text",
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "fhirsync.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "fhirsync.key"),
		},
		Upload: UploadConfig{
			Mode:              "bundle",
			HTTPVerbForCreate: "PUT",
			BundleSize:        500,
		},
		Remote: RemoteConfig{
			Type:    "filesystem",
			BaseURL: "https://fhir.example.org/fhir",
			FSRoot:  filepath.Join(baseDir, "remote"),
		},
		Import: ImportConfig{
			Ignore: []string{".*", "*.tmp"},
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
