// Package faas deploys and removes stage functions with faas-cli, so that only the
// stages currently running hold cluster resources.
package faas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/baton/internal/logging"
	"github.com/aretw0/baton/pkg/domain"
)

// Provisioner implements ports.Provisioner by shelling out to faas-cli.
// Only stages present in its allow-list can be deployed or removed.
type Provisioner struct {
	cli       string
	functions map[string]string
	baseDir   string
	timeout   time.Duration
	logger    *slog.Logger
}

// DefaultTimeout bounds a single faas-cli run.
const DefaultTimeout = 2 * time.Minute

// waitDelay is how long a killed faas-cli may keep its output pipes open.
const waitDelay = 2 * time.Second

type Option func(*Provisioner)

// WithCLI sets the faas-cli binary. Defaults to "faas-cli".
func WithCLI(path string) Option {
	return func(p *Provisioner) {
		if path != "" {
			p.cli = path
		}
	}
}

// WithBaseDir sets the working directory and the root for relative deploy files.
func WithBaseDir(dir string) Option {
	return func(p *Provisioner) {
		p.baseDir = dir
	}
}

// WithTimeout bounds each deploy or remove. Zero keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provisioner) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provisioner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProvisioner creates a provisioner for the given stage -> deploy file table.
func NewProvisioner(functions map[string]string, opts ...Option) *Provisioner {
	p := &Provisioner{
		cli:       "faas-cli",
		functions: make(map[string]string, len(functions)),
		timeout:   DefaultTimeout,
		logger:    logging.NewNop(),
	}
	for name, file := range functions {
		p.functions[name] = file
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DeployFile returns the deploy file of a stage, checking that it exists.
func (p *Provisioner) DeployFile(stage string) (string, error) {
	file, ok := p.functions[stage]
	if !ok {
		return "", fmt.Errorf("%w: no function registered for %s", domain.ErrStageNotFound, stage)
	}
	if !filepath.IsAbs(file) && p.baseDir != "" {
		file = filepath.Join(p.baseDir, file)
	}
	if _, err := os.Stat(file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: deploy file %s of %s does not exist", domain.ErrConfiguration, file, stage)
		}
		return "", fmt.Errorf("stat deploy file %s: %w", file, err)
	}
	return file, nil
}

// Deploy runs `faas-cli deploy -f <file>` for the stage.
func (p *Provisioner) Deploy(ctx context.Context, stage string) error {
	return p.run(ctx, "deploy", stage)
}

// Remove runs `faas-cli remove -f <file>` for the stage.
func (p *Provisioner) Remove(ctx context.Context, stage string) error {
	return p.run(ctx, "remove", stage)
}

func (p *Provisioner) run(ctx context.Context, verb, stage string) error {
	file, err := p.DeployFile(stage)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.cli, verb, "-f", file)
	cmd.Dir = p.baseDir
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s failed: %w. Stderr: %s", verb, stage, err, strings.TrimSpace(stderr.String()))
	}
	p.logger.Info("faas-cli "+verb+" succeeded", "stage", stage, "file", file, "output", strings.TrimSpace(stdout.String()))
	return nil
}
