package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for captured process output.
const (
	DefaultMaxSizeMB  = 50 // MB
	DefaultMaxBackups = 2  // number of backup files
	DefaultMaxAgeDays = 14 // days
)

// Config describes where the stdio of a supervised process is captured.
// If StdoutPath/StderrPath are empty and Dir is set, files default to
// Dir/<name>.log (combined) or Dir/<name>.stdout.log / Dir/<name>.stderr.log.
// Rotation parameters follow lumberjack semantics.
type Config struct {
	Dir        string `json:"dir" mapstructure:"dir"`
	StdoutPath string `json:"stdout_path" mapstructure:"stdout_path"`
	StderrPath string `json:"stderr_path" mapstructure:"stderr_path"`
	Combined   bool   `json:"combined" mapstructure:"combined"` // merge stderr into stdout
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Writers returns io.WriteClosers for stdout and stderr of the named
// process. When Combined is set, both writers refer to the same file and
// only the stdout closer actually closes it.
func (c Config) Writers(name string) (io.WriteCloser, io.WriteCloser, error) {
	stdout := c.StdoutPath
	stderr := c.StderrPath
	if stdout == "" && c.Dir != "" {
		if c.Combined {
			stdout = filepath.Join(c.Dir, fmt.Sprintf("%s.log", name))
		} else {
			stdout = filepath.Join(c.Dir, fmt.Sprintf("%s.stdout.log", name))
		}
	}
	if stderr == "" && c.Dir != "" && !c.Combined {
		stderr = filepath.Join(c.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	var outW, errW io.WriteCloser
	if stdout != "" {
		outW = c.newWriter(stdout)
	}
	if c.Combined {
		if outW != nil {
			errW = nopCloser{outW}
		}
		return outW, errW, nil
	}
	if stderr != "" {
		errW = c.newWriter(stderr)
	}
	return outW, errW, nil
}

func (c Config) newWriter(path string) io.WriteCloser {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// New returns the slog logger used by the runner itself (not by the
// supervised processes, whose stdio goes through Writers).
func New(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := NewColorTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}, debug)
	return slog.New(h)
}
