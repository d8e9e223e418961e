package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is the on-disk layout under the aqa home directory.
type Workspace struct {
	Root string
}

// NewWorkspace resolves the workspace root from AQA_HOME, falling back to
// ~/.aqa.
func NewWorkspace() (*Workspace, error) {
	if home := os.Getenv("AQA_HOME"); home != "" {
		return &Workspace{Root: home}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return &Workspace{Root: filepath.Join(home, ".aqa")}, nil
}

// CacheDir is where the plan cache lives.
func (w *Workspace) CacheDir() string {
	return filepath.Join(w.Root, "cache")
}

// PlansDir is the root of the plan version store.
func (w *Workspace) PlansDir() string {
	return filepath.Join(w.Root, "plans")
}

// HistoryPath is the default sqlite history database file.
func (w *Workspace) HistoryPath() string {
	return filepath.Join(w.Root, "history.db")
}

// HistoryDir is the root of the file-tree history backend.
func (w *Workspace) HistoryDir() string {
	return filepath.Join(w.Root, "history")
}

// ReportsDir is where saved runner reports are written.
func (w *Workspace) ReportsDir() string {
	return filepath.Join(w.Root, "reports")
}

// Init creates the workspace directory tree. Existing directories are left
// untouched.
func (w *Workspace) Init() error {
	for _, dir := range []string{w.Root, w.CacheDir(), w.PlansDir(), w.HistoryDir(), w.ReportsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create workspace directory %s: %w", dir, err)
		}
	}
	return nil
}

// Status reports which parts of the workspace exist.
type WorkspaceStatus struct {
	Root          string `json:"root"`
	Initialized   bool   `json:"initialized"`
	CacheExists   bool   `json:"cache_exists"`
	PlansExists   bool   `json:"plans_exists"`
	HistoryExists bool   `json:"history_exists"`
	ReportsExists bool   `json:"reports_exists"`
}

// Status inspects the workspace on disk.
func (w *Workspace) Status() WorkspaceStatus {
	st := WorkspaceStatus{Root: w.Root}
	st.Initialized = dirExists(w.Root)
	st.CacheExists = dirExists(w.CacheDir())
	st.PlansExists = dirExists(w.PlansDir())
	st.ReportsExists = dirExists(w.ReportsDir())
	if _, err := os.Stat(w.HistoryPath()); err == nil {
		st.HistoryExists = true
	} else {
		st.HistoryExists = dirExists(w.HistoryDir())
	}
	return st
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
