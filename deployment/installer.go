package deployment

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ErrEntryPointMissing is returned when the unpacked bundle does not
// contain the designated installation entry point. Nothing is spawned
// in that case.
var ErrEntryPointMissing = errors.New("deployment bundle has no installation entry point")

// ExitError reports an installer entry point that ran but exited
// non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("installation entry point exited with code %d", e.Code)
}

// Installer unpacks a staged bundle and runs its entry point. The
// entry point's output is relayed to the log line by line as it is
// produced, never parsed or interpreted.
type Installer struct {
	InstallRoot string
	EntryPoint  string
	Log         *slog.Logger
}

// Install unpacks bundlePath into the install root and executes the
// entry point, blocking until it exits. A non-zero exit code surfaces
// as *ExitError; a bundle without an entry point as
// ErrEntryPointMissing.
func (i *Installer) Install(ctx context.Context, bundlePath string) error {
	if err := i.unpack(bundlePath); err != nil {
		return fmt.Errorf("could not unpack deployment bundle: %w", err)
	}

	entry := filepath.Join(i.InstallRoot, i.EntryPoint)
	info, err := os.Stat(entry)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: expected %s", ErrEntryPointMissing, entry)
	}
	if info.Mode().Perm()&0100 == 0 {
		if err := os.Chmod(entry, info.Mode().Perm()|0755); err != nil {
			return fmt.Errorf("could not mark entry point executable: %w", err)
		}
	}

	return i.runEntryPoint(ctx, entry)
}

func (i *Installer) runEntryPoint(ctx context.Context, entry string) error {
	cmd := exec.CommandContext(ctx, entry)
	cmd.Dir = i.InstallRoot

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("could not open installer output pipe: %w", err)
	}
	// StdoutPipe assigned cmd.Stdout; aliasing stderr onto it gives a
	// single combined, ordered stream.
	cmd.Stderr = cmd.Stdout

	i.Log.Info("Running installation entry point", slog.String("path", entry))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("could not start installation entry point: %w", err)
	}

	installerLog := i.Log.With(slog.String("source", "installer"))
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		installerLog.Info(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		// Keep draining so the child never blocks on a full pipe and
		// Wait can observe its exit.
		i.Log.Warn("Installer output relay stopped early", "err", err)
		_, _ = io.Copy(io.Discard, stdout)
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("installation entry point failed: %w", err)
	}

	i.Log.Info("Installation entry point finished")
	return nil
}

// unpack extracts the gzip-compressed tar archive into the install
// root. Entries escaping the root are rejected.
func (i *Installer) unpack(bundlePath string) error {
	f, err := os.Open(bundlePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("could not read gzip stream: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(i.InstallRoot, 0755); err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not read archive: %w", err)
		}

		target, err := i.securePath(hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, hdr.FileInfo().Mode().Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		default:
			i.Log.Debug("Skipping unsupported archive entry",
				slog.String("name", hdr.Name),
				slog.Int("type", int(hdr.Typeflag)))
		}
	}
}

func (i *Installer) securePath(name string) (string, error) {
	target := filepath.Join(i.InstallRoot, filepath.Clean("/"+name))
	if !strings.HasPrefix(target, filepath.Clean(i.InstallRoot)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes install root: %s", name)
	}
	return target, nil
}
