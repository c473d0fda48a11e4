package config

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents how kidlock is running.
type ExecMode string

const (
	// ExecModeUser runs as the logged-in user and keeps data in the home directory
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root and keeps data system-wide
	ExecModeSystem ExecMode = "system"
)

// SystemDataDir is the data directory in system mode.
const SystemDataDir = "/var/lib/kidlock"

// ExecModeConfig holds the mode-dependent defaults.
type ExecModeConfig struct {
	Mode    ExecMode
	DataDir string // Where the encrypted store and key live
	IsRoot  bool
}

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 && os.Getenv("SUDO_USER") == "" {
		return &ExecModeConfig{
			Mode:    ExecModeSystem,
			DataDir: SystemDataDir,
			IsRoot:  true,
		}
	}
	return &ExecModeConfig{
		Mode:    ExecModeUser,
		DataDir: filepath.Join(RealUserHome(), ".kidlock"),
		IsRoot:  os.Geteuid() == 0,
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user"
	default:
		return "unknown"
	}
}

// RealUserHome returns the invoking user's home directory, even under sudo.
// Under sudo os.UserHomeDir() returns root's home, so SUDO_USER is used.
func RealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
