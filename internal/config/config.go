package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"

	"github.com/NowakAdmin/PosPrintAgent/internal/devices"
	"github.com/NowakAdmin/PosPrintAgent/internal/escpos"
)

type APIConfig struct {
	Listen      string   `json:"listen"`
	Token       string   `json:"token,omitempty"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
}

type UpdateConfig struct {
	GitHubRepo         string `json:"github_repo,omitempty"`
	CheckIntervalHours int    `json:"check_interval_hours"`
}

type Config struct {
	ServerURL        string                `json:"server_url"`
	WebSocketURL     string                `json:"websocket_url"`
	AgentID          string                `json:"agent_id,omitempty"`
	AgentToken       string                `json:"agent_token"`
	TenantID         string                `json:"tenant_id,omitempty"`
	DeviceName       string                `json:"device_name,omitempty"`
	HeartbeatSeconds int                   `json:"heartbeat_seconds"`
	LogLevel         string                `json:"log_level,omitempty"`
	Printer          devices.PrinterConfig `json:"printer"`
	API              APIConfig             `json:"api"`
	Update           UpdateConfig          `json:"update"`
}

func Default() *Config {
	return &Config{
		ServerURL:        "",
		WebSocketURL:     "",
		AgentToken:       "",
		HeartbeatSeconds: 30,
		LogLevel:         "info",
		Printer: devices.PrinterConfig{
			Transport:     "serial",
			BaudRate:      9600,
			WriteTimeoutS: 5,
			DialTimeoutS:  5,
			ScanTimeoutS:  10,
			CodePage:      escpos.DefaultCodePage,
			BarcodeHeight: escpos.DefaultBarcodeHeight,
			BarcodeWidth:  escpos.DefaultBarcodeWidth,
		},
		API: APIConfig{
			Listen: "127.0.0.1:3491",
		},
		Update: UpdateConfig{
			CheckIntervalHours: 6,
		},
	}
}

func LoadOrCreateDefault() (*Config, error) {
	if _, err := os.Stat(Path()); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if errSave := Save(cfg); errSave != nil {
			return nil, errSave
		}
		return cfg, nil
	}

	return Load()
}

func Load() (*Config, error) {
	data, err := os.ReadFile(Path())
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err = json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if cfg.HeartbeatSeconds <= 0 {
		cfg.HeartbeatSeconds = 30
	}

	if cfg.Printer.CodePage == "" {
		cfg.Printer.CodePage = escpos.DefaultCodePage
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = "127.0.0.1:3491"
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	if err := os.MkdirAll(Dir(), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(Path(), data, 0o600)
}

func Dir() string {
	programData := os.Getenv("ProgramData")
	if runtime.GOOS == "windows" {
		if programData == "" {
			programData = "C:\\ProgramData"
		}
		return filepath.Join(programData, "PosPrintAgent")
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}

	return filepath.Join(configDir, "posprint-agent")
}

func LogDir() string {
	return filepath.Join(Dir(), "logs")
}

// DataDir holds the badger database with the paired printer address.
func DataDir() string {
	return filepath.Join(Dir(), "data")
}

func Path() string {
	return filepath.Join(Dir(), "config.json")
}
