package runner

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/aqakit/brain/pkg/diag"
)

// BinaryName is the executor binary this control plane drives.
const BinaryName = "aqa-runner"

// RunnerPathEnv overrides binary discovery.
const RunnerPathEnv = "AQA_RUNNER_PATH"

// FindBinary locates the executor. Search order: explicit override, the
// AQA_RUNNER_PATH variable, the project's release and debug build outputs,
// the user's cargo bin, system install paths, then PATH. Returns E4002
// listing every location tried.
func FindBinary(override string) (string, error) {
	var tried []string

	candidates := []string{}
	if override != "" {
		candidates = append(candidates, override)
	}
	if env := os.Getenv(RunnerPathEnv); env != "" {
		candidates = append(candidates, env)
	}
	candidates = append(candidates,
		filepath.Join("target", "release", BinaryName),
		filepath.Join("target", "debug", BinaryName),
	)
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".cargo", "bin", BinaryName))
	}
	candidates = append(candidates,
		filepath.Join("/usr/local/bin", BinaryName),
		filepath.Join("/usr/bin", BinaryName),
	)

	for _, path := range candidates {
		if isExecutable(path) {
			return path, nil
		}
		tried = append(tried, path)
	}

	if path, err := exec.LookPath(BinaryName); err == nil {
		return path, nil
	}
	tried = append(tried, "$PATH")

	return "", diag.New(diag.CodeRunnerNotFound,
		"executor binary "+BinaryName+" not found; tried: "+strings.Join(tried, ", ")).
		WithSuggestion("install the executor or set " + RunnerPathEnv)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
