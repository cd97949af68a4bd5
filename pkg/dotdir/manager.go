// Package dotdir manages the .recall/ and ~/.recall directories, where the
// database, frame assets, logs, config and reprocessing cache live.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the recall directory.
	dirName = ".recall"

	DatabaseFile   = "recall.db"
	ScreenshotsDir = "screenshots"
	CacheFile      = "reprocess.cache"
	LogFile        = "recall.log"
	ConfigFile     = "config.toml"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .recall/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.recall/ dir
//  3. Home ~/.recall/ dir
//  4. If none found, attempt to create ~/.recall/ dir
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating recall directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// Paths are the well-known files inside a recall directory.
type Paths struct {
	Dir         string
	Database    string
	Screenshots string
	Cache       string
	Log         string
	Config      string
}

// Paths resolves the target directory and the files inside it.
func (m *Manager) Paths(overrideDir string) (*Paths, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	return &Paths{
		Dir:         dir,
		Database:    filepath.Join(dir, DatabaseFile),
		Screenshots: filepath.Join(dir, ScreenshotsDir),
		Cache:       filepath.Join(dir, CacheFile),
		Log:         filepath.Join(dir, LogFile),
		Config:      filepath.Join(dir, ConfigFile),
	}, nil
}

// localDirExists checks whether a .recall/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
