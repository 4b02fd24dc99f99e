// Package provision prepares the working directory the daemon runs in:
// the output/log/config layout and the .env file holding the API key.
package provision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

var Layout = []string{
	"output/photos",
	"output/videos",
	"output/screenshots",
	"logs",
	"config",
	"assets",
}

const (
	EnvFile     = ".env"
	EnvTemplate = ".env.example"
	Icon        = "assets/jarvis_icon.png"
)

type EnvResult int

const (
	EnvSeeded EnvResult = iota
	EnvExists
	EnvNoTemplate
)

func (r EnvResult) String() string {
	switch r {
	case EnvSeeded:
		return "seeded"
	case EnvExists:
		return "exists"
	case EnvNoTemplate:
		return "no-template"
	}
	return "unknown"
}

type Report struct {
	Created  []string
	Env      EnvResult
	Warnings []string
}

// Ensure creates every layout directory under root. Existing directories
// are left alone; the paths actually created are returned.
func Ensure(fs afero.Fs, root string) ([]string, error) {
	var created []string

	for _, dir := range Layout {
		p := filepath.Join(root, dir)

		ok, err := afero.DirExists(fs, p)
		if err != nil {
			return created, fmt.Errorf("stat %s: %w", p, err)
		}
		if ok {
			continue
		}

		if err := fs.MkdirAll(p, 0o755); err != nil {
			return created, fmt.Errorf("mkdir %s: %w", p, err)
		}
		created = append(created, dir)
	}

	return created, nil
}

// SeedEnv copies .env.example to .env when .env does not exist yet. An
// existing .env is never touched.
func SeedEnv(fs afero.Fs, root string) (EnvResult, error) {
	dst := filepath.Join(root, EnvFile)

	if _, err := fs.Stat(dst); err == nil {
		return EnvExists, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("stat %s: %w", dst, err)
	}

	data, err := afero.ReadFile(fs, filepath.Join(root, EnvTemplate))
	if errors.Is(err, os.ErrNotExist) {
		return EnvNoTemplate, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read template: %w", err)
	}

	if err := afero.WriteFile(fs, dst, data, 0o600); err != nil {
		return 0, fmt.Errorf("write %s: %w", dst, err)
	}

	return EnvSeeded, nil
}

// Run provisions root. Only filesystem errors are returned; anything
// merely missing ends up in Report.Warnings.
func Run(fs afero.Fs, root string) (Report, error) {
	var rep Report

	created, err := Ensure(fs, root)
	rep.Created = created
	if err != nil {
		return rep, err
	}

	rep.Env, err = SeedEnv(fs, root)
	if err != nil {
		return rep, err
	}

	if rep.Env == EnvNoTemplate {
		rep.Warnings = append(rep.Warnings,
			fmt.Sprintf("%s and %s are both missing, set OPENROUTER_API_KEY in the environment", EnvFile, EnvTemplate))
	}

	if ok, _ := afero.Exists(fs, filepath.Join(root, Icon)); !ok {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("icon %s not found", Icon))
	}

	return rep, nil
}

// Prerequisite is a hard requirement of the daemon. Check returns nil
// when it is met.
type Prerequisite struct {
	Name  string
	Check func() error
}

// Prepare runs every check in order and provisions root only when all of
// them pass. A failed check leaves the filesystem untouched.
func Prepare(fs afero.Fs, root string, prereqs []Prerequisite) (Report, error) {
	for _, p := range prereqs {
		if err := p.Check(); err != nil {
			return Report{}, fmt.Errorf("missing prerequisite %s: %w", p.Name, err)
		}
	}
	return Run(fs, root)
}
