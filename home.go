package rigel

import (
	"os"
	"path/filepath"
)

// Home returns the Rigel home directory.
// It defaults to ~/.rigel but can be overridden with the RIGEL_HOME environment variable.
func Home() string {
	if v := os.Getenv("RIGEL_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rigel")
}

// DefaultDBPath returns the default SQLite database path (~/.rigel/rigel.db).
func DefaultDBPath() string {
	return filepath.Join(Home(), "rigel.db")
}

// DefaultConfigPath returns the default CLI config file (~/.rigel/rigel.yaml).
func DefaultConfigPath() string {
	return filepath.Join(Home(), "rigel.yaml")
}
