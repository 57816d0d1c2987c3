package ocr

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	apperrors "github.com/GriffinCanCode/resource-overlay/internal/errors"
)

// Mode selects how the engine is located.
type Mode string

const (
	// Development runs ocr_service.py under a virtualenv or system interpreter.
	Development Mode = "development"
	// Production runs the packaged ocr_service binary.
	Production Mode = "production"
)

// ParseMode maps APP_ENV style values onto a Mode.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(Production)) {
		return Production
	}
	return Development
}

// Executable is a resolved engine command.
type Executable struct {
	Path string   `json:"path"`
	Args []string `json:"args,omitempty"`
	// Env entries are appended to the parent environment.
	Env []string `json:"env,omitempty"`
}

// Resolver locates the engine.
type Resolver interface {
	Resolve(ctx context.Context) (Executable, error)
}

// StaticResolver always yields the same executable.
type StaticResolver Executable

// Resolve implements Resolver.
func (s StaticResolver) Resolve(context.Context) (Executable, error) {
	return Executable(s), nil
}

// ResolverConfig drives DefaultResolver.
type ResolverConfig struct {
	Mode    Mode
	BaseDir string
	// EnginePath, when set, is used as-is; EngineScript is passed to it as the first argument.
	EnginePath   string
	EngineScript string
}

// DefaultResolver implements the packaged-binary and interpreter-plus-script layouts.
type DefaultResolver struct {
	cfg   ResolverConfig
	goos  string
	probe func(ctx context.Context, name string) error
}

// NewResolver creates a resolver for the current platform.
func NewResolver(cfg ResolverConfig) *DefaultResolver {
	return &DefaultResolver{cfg: cfg, goos: runtime.GOOS, probe: probeVersion}
}

// Resolve implements Resolver. Every failure is OCR_RESOLUTION_FAILED.
func (r *DefaultResolver) Resolve(ctx context.Context) (Executable, error) {
	switch {
	case r.cfg.EnginePath != "":
		return r.resolveOverride()
	case r.cfg.Mode == Production:
		return r.resolveBundled()
	default:
		return r.resolveScript(ctx)
	}
}

func (r *DefaultResolver) resolveOverride() (Executable, error) {
	path := r.cfg.EnginePath
	if !strings.ContainsRune(path, filepath.Separator) && !strings.ContainsRune(path, '/') {
		found, err := exec.LookPath(path)
		if err != nil {
			return Executable{}, apperrors.Wrapf(err, apperrors.OCRResolutionFailed, "engine %q not in PATH", path)
		}
		path = found
	} else if !fileExists(path) {
		return Executable{}, apperrors.Newf(apperrors.OCRResolutionFailed, "engine %q does not exist", path)
	}

	exe := Executable{Path: path}
	if r.cfg.EngineScript != "" {
		if !fileExists(r.cfg.EngineScript) {
			return Executable{}, apperrors.Newf(apperrors.OCRResolutionFailed, "engine script %q does not exist", r.cfg.EngineScript)
		}
		exe.Args = []string{r.cfg.EngineScript}
	}
	return exe, nil
}

func (r *DefaultResolver) resolveBundled() (Executable, error) {
	name := engineBinary
	if r.goos == "windows" {
		name += ".exe"
	}
	path := filepath.Join(r.cfg.BaseDir, resourcesDir, engineDir, name)
	if !fileExists(path) {
		return Executable{}, apperrors.Newf(apperrors.OCRResolutionFailed, "bundled engine %q not found", path)
	}
	return Executable{Path: path}, nil
}

func (r *DefaultResolver) resolveScript(ctx context.Context) (Executable, error) {
	script := r.cfg.EngineScript
	if script == "" {
		script = filepath.Join(r.cfg.BaseDir, engineDir, engineScript)
	}
	if !fileExists(script) {
		return Executable{}, apperrors.Newf(apperrors.OCRResolutionFailed, "engine script %q not found", script)
	}

	if exe, ok := r.virtualenv(); ok {
		exe.Args = []string{script}
		return exe, nil
	}

	for _, name := range pythonCandidates {
		if err := r.probe(ctx, name); err != nil {
			slog.Debug("python candidate rejected", "name", name, "error", err)
			continue
		}
		return Executable{Path: name, Args: []string{script}}, nil
	}
	return Executable{}, apperrors.Newf(apperrors.OCRResolutionFailed,
		"no python interpreter found (tried %s); install Python 3 or create %s",
		strings.Join(pythonCandidates, ", "), filepath.Join(engineDir, ".venv"))
}

// virtualenv finds <base>/python-ocr/.venv and sets VIRTUAL_ENV (and PYTHONPATH on Windows layouts).
func (r *DefaultResolver) virtualenv() (Executable, bool) {
	venv := filepath.Join(r.cfg.BaseDir, engineDir, ".venv")
	if abs, err := filepath.Abs(venv); err == nil {
		venv = abs
	}

	if py := filepath.Join(venv, "bin", "python"); fileExists(py) {
		return Executable{Path: py, Env: []string{"VIRTUAL_ENV=" + venv}}, true
	}

	if py := filepath.Join(venv, "Scripts", "python.exe"); fileExists(py) {
		sitePackages := filepath.Join(venv, "Lib", "site-packages")
		pythonPath := sitePackages
		if existing := os.Getenv("PYTHONPATH"); existing != "" {
			pythonPath += string(os.PathListSeparator) + existing
		}
		return Executable{Path: py, Env: []string{"VIRTUAL_ENV=" + venv, "PYTHONPATH=" + pythonPath}}, true
	}
	return Executable{}, false
}

func probeVersion(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return exec.CommandContext(ctx, name, "--version").Run()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
