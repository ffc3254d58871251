package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server   ServerSettings   `json:"server"`
	Storage  StorageSettings  `json:"storage"`
	Database DatabaseSettings `json:"database"`
	Sync     SyncSettings     `json:"sync"`
	Sources  SourceSettings   `json:"sources"`
	Refresh  RefreshSettings  `json:"refresh"`
	Log      LogSettings      `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StorageSettings controls the local and compact show stores.
type StorageSettings struct {
	Directory      string `json:"directory"`
	SyncQuotaBytes int    `json:"syncQuotaBytes"`
}

type DatabaseSettings struct {
	Path string `json:"path"`
}

// SyncSettings selects the remote tier. RemoteURL "" means serve rows from
// the local database; a URL points this instance at another one.
type SyncSettings struct {
	RemoteURL string `json:"remoteUrl"`
}

type SourceSettings struct {
	TVMazeBaseURL    string `json:"tvmazeBaseUrl"`
	WikidataEndpoint string `json:"wikidataEndpoint"`
	CacheDirectory   string `json:"cacheDirectory"`
	CacheTTLHours    int    `json:"cacheTtlHours"`
}

type RefreshSettings struct {
	FreshnessHours  int `json:"freshnessHours"`
	IntervalMinutes int `json:"intervalMinutes"`
	MaxConcurrent   int `json:"maxConcurrent"`
}

type LogSettings struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns the configuration used on first launch.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			Host: "0.0.0.0",
			Port: 7950,
		},
		Storage: StorageSettings{
			Directory:      "data/shows",
			SyncQuotaBytes: 8192,
		},
		Database: DatabaseSettings{
			Path: "data/nextup.db",
		},
		Sources: SourceSettings{
			CacheDirectory: "data/cache",
			CacheTTLHours:  24,
		},
		Refresh: RefreshSettings{
			FreshnessHours:  2,
			IntervalMinutes: 30,
			MaxConcurrent:   4,
		},
		Log: LogSettings{
			File:       "data/logs/nextup.log",
			MaxSize:    10,
			MaxAge:     14,
			MaxBackups: 3,
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}

	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults when the config predates a setting.
	defaults := DefaultSettings()
	if s.Server.Port == 0 {
		s.Server.Port = defaults.Server.Port
	}
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = defaults.Server.Host
	}
	if strings.TrimSpace(s.Storage.Directory) == "" {
		s.Storage.Directory = defaults.Storage.Directory
	}
	if s.Storage.SyncQuotaBytes <= 0 {
		s.Storage.SyncQuotaBytes = defaults.Storage.SyncQuotaBytes
	}
	if strings.TrimSpace(s.Database.Path) == "" {
		s.Database.Path = defaults.Database.Path
	}
	if strings.TrimSpace(s.Sources.CacheDirectory) == "" {
		s.Sources.CacheDirectory = defaults.Sources.CacheDirectory
	}
	if s.Sources.CacheTTLHours <= 0 {
		s.Sources.CacheTTLHours = defaults.Sources.CacheTTLHours
	}
	if s.Refresh.FreshnessHours <= 0 {
		s.Refresh.FreshnessHours = defaults.Refresh.FreshnessHours
	}
	if s.Refresh.IntervalMinutes < 0 {
		s.Refresh.IntervalMinutes = defaults.Refresh.IntervalMinutes
	}
	if s.Refresh.MaxConcurrent <= 0 {
		s.Refresh.MaxConcurrent = defaults.Refresh.MaxConcurrent
	}
	if strings.TrimSpace(s.Log.File) == "" {
		s.Log = defaults.Log
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
