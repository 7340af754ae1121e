// Package session owns the per-run logging context. A Session is opened once
// at the start of a command, handed down to every component that logs, and
// closed when the command ends.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Session is the explicit replacement for process-wide logging state
type Session struct {
	// Log is the logger components should derive their named loggers from
	Log *zap.SugaredLogger

	// LogFile is the file this run logs to, empty when logging only to stderr
	LogFile string

	// Started is when the session was opened
	Started time.Time

	logger   *zap.Logger
	closeOut func()
}

// Open starts a session logging to stderr and to a timestamped file in logDir.
// An empty logDir logs to stderr only.
func Open(logDir string, verbose bool) (*Session, error) {
	s := &Session{Started: time.Now()}

	paths := []string{"stderr"}
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, errors.Wrap(err, "creating log directory")
		}
		s.LogFile = filepath.Join(logDir, fmt.Sprintf("crowdcount_%s.log", s.Started.Format("20060102-150405")))
		paths = append(paths, s.LogFile)
	}

	sink, closeOut, err := zap.Open(paths...)
	if err != nil {
		return nil, errors.Wrap(err, "opening log outputs")
	}

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	s.logger = zap.New(zapcore.NewCore(encoder, sink, level))
	s.Log = s.logger.Sugar()
	s.closeOut = closeOut
	return s, nil
}

// Named returns a child logger for one component
func (s *Session) Named(component string) *zap.SugaredLogger {
	return s.Log.Named(component)
}

// Close flushes and releases the log outputs. The session must not be used afterwards.
func (s *Session) Close() {
	s.Log.Infow("session closed", "elapsed", time.Since(s.Started).Round(time.Millisecond))
	// syncing a terminal stderr fails on some platforms; nothing useful to do about it
	_ = s.logger.Sync()
	s.closeOut()
}
