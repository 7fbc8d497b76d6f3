package logging

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

// File is the on-disk copy of the process log. The standard logger writes to
// both stdout and the file once Init has run.
type File struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// Init sets up dual logging to stdout and the file at path.
func Init(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}

	lf := &File{path: path, f: f}
	log.SetOutput(io.MultiWriter(os.Stdout, lf))
	log.Printf("Logging to file: %s", path)
	return lf, nil
}

// Write implements io.Writer so the file can sit behind log.SetOutput.
func (lf *File) Write(p []byte) (int, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.f == nil {
		return len(p), nil
	}
	return lf.f.Write(p)
}

// Path returns the log file location.
func (lf *File) Path() string {
	return lf.path
}

// ReadTail returns the last n lines from the log file.
func (lf *File) ReadTail(n int) (string, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	lines, err := readLines(lf.path)
	if err != nil {
		return "", err
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), nil
}

// Clear truncates the log file.
func (lf *File) Clear() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.truncateLocked()
}

// Trim rewrites the file keeping only the last keep lines.
func (lf *File) Trim(keep int) error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	lines, err := readLines(lf.path)
	if err != nil {
		return err
	}
	if len(lines) <= keep {
		return nil
	}
	lines = lines[len(lines)-keep:]

	if err := lf.truncateLocked(); err != nil {
		return err
	}
	content := strings.Join(lines, "\n") + "\n"
	if lf.f != nil {
		_, err = lf.f.WriteString(content)
	} else {
		err = os.WriteFile(lf.path, []byte(content), 0600)
	}
	if err != nil {
		return fmt.Errorf("rewrite log file: %w", err)
	}
	return nil
}

// Close detaches the file from the standard logger and closes it.
func (lf *File) Close() error {
	log.SetOutput(os.Stdout)
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.f == nil {
		return nil
	}
	err := lf.f.Close()
	lf.f = nil
	return err
}

func (lf *File) truncateLocked() error {
	if lf.f != nil {
		if err := lf.f.Truncate(0); err != nil {
			return fmt.Errorf("truncate log file: %w", err)
		}
		if _, err := lf.f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("seek log file: %w", err)
		}
		return nil
	}
	if err := os.Truncate(lf.path, 0); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("truncate log file: %w", err)
	}
	return nil
}

// ScheduleTrim registers a cron job that trims the log file down to keep
// lines. The returned scheduler is already started; callers Stop it on
// shutdown.
func (lf *File) ScheduleTrim(spec string, keep int) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if err := lf.Trim(keep); err != nil {
			log.Printf("[logging] trim failed: %v", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule log trim %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan log file: %w", err)
	}
	return lines, nil
}
