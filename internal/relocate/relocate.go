package relocate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"meetsync/internal/config"
	"meetsync/internal/fileutil"
	"meetsync/internal/logging"
	"meetsync/internal/services"
	"meetsync/internal/textutil"
)

const maxCollisions = 100

var (
	// ErrTooManyCollisions is returned when every numbered variant of a name
	// is already taken.
	ErrTooManyCollisions = errors.New("too many duplicate file names")
	// ErrNotReady is returned when a file keeps growing or cannot be read
	// across every readiness check.
	ErrNotReady = errors.New("file not ready")
	// ErrInsufficientSpace is returned by the preflight when the output
	// directory cannot hold the file.
	ErrInsufficientSpace = errors.New("insufficient free space")
)

// Result describes where a relocated file ended up.
type Result struct {
	RenamedPath string
	OutputPath  string
	Size        int64
	Fallback    bool
}

// Relocator performs rename, verified copy, then delete.
type Relocator struct {
	outputDir string
	attempts  int
	delay     time.Duration
	available func(dir string) (uint64, error)
	logger    *slog.Logger
}

// Option customizes a Relocator.
type Option func(*Relocator)

// WithSpaceCheck replaces the free space probe used by the preflight.
func WithSpaceCheck(fn func(dir string) (uint64, error)) Option {
	return func(r *Relocator) {
		if fn != nil {
			r.available = fn
		}
	}
}

// New builds a Relocator from the paths and readiness settings in cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Relocator {
	r := &Relocator{
		outputDir: cfg.Paths.OutputDir,
		attempts:  cfg.Workflow.ReadyCheckAttempts,
		delay:     time.Duration(cfg.Workflow.ReadyCheckDelaySeconds) * time.Second,
		available: fileutil.AvailableBytes,
		logger:    logging.NewComponentLogger(logger, "relocate"),
	}
	if r.attempts < 2 {
		r.attempts = 2
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OutputDir returns the directory relocated files are copied into.
func (r *Relocator) OutputDir() string {
	return r.outputDir
}

// BuildName returns the file name for a recording of the titled meeting.
// ext may be given with or without its leading dot.
func BuildName(title, token, ext string) string {
	title = textutil.SanitizeFileName(title)
	if title == "" {
		title = "Meeting"
	}
	return title + "_" + token + normalizeExt(ext)
}

// UniquePath returns dir/base+ext, or the first free numbered variant
// dir/base_NN+ext when that name is taken.
func UniquePath(dir, base, ext string) (string, error) {
	ext = normalizeExt(ext)
	candidate := filepath.Join(dir, base+ext)
	for counter := 1; ; counter++ {
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		if counter >= maxCollisions {
			return "", fmt.Errorf("%w: %s", ErrTooManyCollisions, filepath.Join(dir, base+ext))
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%02d%s", base, counter, ext))
	}
}

// WaitReady blocks until the size of path stays the same across two
// consecutive checks and returns that size.
func (r *Relocator) WaitReady(ctx context.Context, path string) (int64, error) {
	previous := int64(-1)
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		info, err := os.Stat(path)
		switch {
		case err != nil:
			lastErr = err
			previous = -1
		case !info.Mode().IsRegular():
			return 0, fmt.Errorf("%w: %s is not a regular file", ErrNotReady, path)
		case info.Size() > 0 && info.Size() == previous:
			return info.Size(), nil
		default:
			if previous >= 0 {
				r.logger.Debug("file still being written",
					logging.String("path", path),
					logging.Int64("previous_bytes", previous),
					logging.Int64("current_bytes", info.Size()),
				)
			}
			previous = info.Size()
		}
		if attempt < r.attempts {
			if err := sleep(ctx, r.delay); err != nil {
				return 0, err
			}
		}
	}
	if lastErr != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrNotReady, path, lastErr)
	}
	return 0, fmt.Errorf("%w: %s after %d checks", ErrNotReady, path, r.attempts)
}

// Relocate renames src to "{title}_{token}.{ext}", copies it into the output
// directory and deletes the renamed file once the copy is confirmed. A src
// that already carries the target name is not renamed again, so a relocation
// interrupted after the rename can be resumed from the renamed path.
func (r *Relocator) Relocate(ctx context.Context, src, title, token string) (Result, error) {
	size, err := r.prepare(ctx, src)
	if err != nil {
		return Result{}, err
	}

	ext := filepath.Ext(src)
	name := BuildName(title, token, ext)
	base := strings.TrimSuffix(name, ext)
	renamed := src
	if filepath.Base(src) != name {
		renamed, err = UniquePath(filepath.Dir(src), base, ext)
		if err != nil {
			return Result{}, services.Wrap(services.ErrValidation, "relocate", "Name file", "No free file name", err)
		}
		if err := os.Rename(src, renamed); err != nil {
			return Result{}, services.Wrap(services.ErrExternalTool, "relocate", "Rename file", "Rename in place failed", err)
		}
		r.logger.Info("file renamed",
			logging.String(logging.FieldEventType, "asset_renamed"),
			logging.String("from", filepath.Base(src)),
			logging.String("to", filepath.Base(renamed)),
		)
	}

	result := Result{RenamedPath: renamed, Size: size}
	outputPath, err := r.copyThenDelete(renamed, size)
	if err != nil {
		return result, err
	}
	result.OutputPath = outputPath
	return result, nil
}

// Fallback copies src into the output directory under its original name and
// deletes it once the copy is confirmed.
func (r *Relocator) Fallback(ctx context.Context, src string) (Result, error) {
	size, err := r.prepare(ctx, src)
	if err != nil {
		return Result{}, err
	}
	result := Result{RenamedPath: src, Size: size, Fallback: true}
	outputPath, err := r.copyThenDelete(src, size)
	if err != nil {
		return result, err
	}
	result.OutputPath = outputPath
	r.logger.Info("file relocated under original name",
		logging.Args(append(logging.DecisionAttrs("relocation_mode", "fallback", "calendar resolution unavailable"),
			logging.String("output_path", outputPath))...)...,
	)
	return result, nil
}

func (r *Relocator) prepare(ctx context.Context, src string) (int64, error) {
	size, err := r.WaitReady(ctx, src)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return 0, services.Wrap(services.ErrValidation, "relocate", "Wait for file", "File never became ready", err)
	}
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "relocate", "Create output dir", r.outputDir, err)
	}
	free, err := r.available(r.outputDir)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "relocate", "Check free space", r.outputDir, err)
	}
	if free <= uint64(size) {
		return 0, services.Wrap(services.ErrExternalTool, "relocate", "Check free space",
			fmt.Sprintf("%d bytes free, %d needed", free, size), ErrInsufficientSpace)
	}
	return size, nil
}

func (r *Relocator) copyThenDelete(src string, size int64) (string, error) {
	ext := filepath.Ext(src)
	base := strings.TrimSuffix(filepath.Base(src), ext)
	dest, err := UniquePath(r.outputDir, base, ext)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "relocate", "Name copy", "No free file name in output dir", err)
	}
	if err := fileutil.CopyFileVerified(src, dest); err != nil {
		logging.WarnWithContext(r.logger, "verified copy failed; source kept", "relocate_copy_failed",
			logging.String("source", src),
			logging.String("destination", dest),
			logging.Error(err),
			logging.String(logging.FieldImpact, "recording stays in the watch directory"),
			logging.String(logging.FieldErrorHint, "check output directory permissions and free space"),
		)
		return "", services.Wrap(services.ErrExternalTool, "relocate", "Copy file", "Verified copy failed", err)
	}
	if err := fileutil.ConfirmPresent(dest, size); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "relocate", "Confirm copy", "Copy not confirmed; source kept", err)
	}
	if err := os.Remove(src); err != nil {
		logging.WarnWithContext(r.logger, "source removal failed after verified copy", "relocate_delete_failed",
			logging.String("source", src),
			logging.Error(err),
			logging.String(logging.FieldImpact, "recording exists in both directories"),
			logging.String(logging.FieldErrorHint, "remove the source file manually"),
		)
	}
	r.logger.Info("file relocated",
		logging.String(logging.FieldEventType, "asset_relocated"),
		logging.String("output_path", dest),
		logging.Int64("size_bytes", size),
	)
	return dest, nil
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
