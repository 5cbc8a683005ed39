package platform

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/spf13/afero"
)

// Operating system constants
const (
	OSDarwin  = "darwin"
	OSWindows = "windows"
	OSLinux   = "linux"
)

// File permissions
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// Command constants
const (
	OpenCommand     = "open"
	ExplorerCommand = "explorer"
	XDGOpenCommand  = "xdg-open"
)

// DefaultDisguiseExtensions are appended by uploaders to get past the sharing
// service's file type filter, e.g. "movie.mkv.zip".
var DefaultDisguiseExtensions = []string{".zip"}

// ErrInsufficientSpace is returned when the destination volume cannot hold a file
var ErrInsufficientSpace = errors.New("insufficient disk space")

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(fsys afero.Fs, dirPath string) error {
	exists, err := afero.DirExists(fsys, dirPath)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return fsys.MkdirAll(dirPath, DefaultDirPermissions)
}

// Exists reports whether path exists as a file or directory
func Exists(fsys afero.Fs, path string) (bool, error) {
	return afero.Exists(fsys, path)
}

// ListFiles returns the regular files of dir sorted by name
func ListFiles(fsys afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// MergeFiles concatenates the files of srcDir, in name order, into dest.
// dest is truncated first. The source directory is left untouched.
func MergeFiles(fsys afero.Fs, srcDir, dest string) error {
	names, err := ListFiles(fsys, srcDir)
	if err != nil {
		return err
	}

	out, err := fsys.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	for _, name := range names {
		if err := appendFile(fsys, out, filepath.Join(srcDir, name)); err != nil {
			return err
		}
	}
	return out.Close()
}

func appendFile(fsys afero.Fs, out io.Writer, path string) error {
	in, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open part %s: %w", path, err)
	}
	defer in.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to append part %s: %w", path, err)
	}
	return nil
}

// RestoreFileName strips a disguise extension from name when what remains
// still carries an extension of its own: "movie.mkv.zip" -> "movie.mkv",
// while "archive.zip" stays as is.
func RestoreFileName(name string, disguises []string) string {
	for _, ext := range disguises {
		if ext == "" || !strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
			continue
		}
		base := name[:len(name)-len(ext)]
		if inner := filepath.Ext(base); inner != "" && inner != base {
			return base
		}
	}
	return name
}

// DeriveFileName picks a file name from the last path segment of rawURL.
// Falls back to "file_<index>" when the URL carries no usable segment.
func DeriveFileName(rawURL string, index int) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return fmt.Sprintf("file_%d", index)
	}

	name := filepath.Base(filepath.FromSlash(u.Path))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return fmt.Sprintf("file_%d", index)
	}
	return name
}

// CheckFreeSpace fails with ErrInsufficientSpace when the volume holding path
// reports less free space than need. Unknown usage is not an error.
func CheckFreeSpace(path string, need int64) error {
	if need <= 0 {
		return nil
	}
	usage, err := disk.Usage(existingParent(path))
	if err != nil {
		return nil
	}
	if usage.Free < uint64(need) {
		return fmt.Errorf("%w: need %d bytes, %d free on %s", ErrInsufficientSpace, need, usage.Free, usage.Path)
	}
	return nil
}

// existingParent walks up until it finds a directory present on the OS filesystem
func existingParent(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

// GetHomeDownloadsDir returns the standard Downloads directory for the user
func GetHomeDownloadsDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, "Downloads"), nil
}

// OpenInFileManager reveals path in the system file manager
func OpenInFileManager(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return fmt.Errorf("file does not exist: %w", err)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case OSDarwin:
		cmd = exec.Command(OpenCommand, "-R", absPath)
	case OSWindows:
		cmd = exec.Command(ExplorerCommand, "/select,", absPath)
	case OSLinux:
		// File selection is not standardized on Linux, open the parent directory
		cmd = exec.Command(XDGOpenCommand, filepath.Dir(absPath))
	default:
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
	return cmd.Run()
}
