package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const fileSinkName = "authz-audit.log"

// FileSink appends records as JSON lines, rotating by size
type FileSink struct {
	basePath string
	maxSize  int64
	maxFiles int
	now      func() time.Time

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// FileSinkConfig configures the file sink
type FileSinkConfig struct {
	BasePath string `yaml:"base_path"`
	// MaxSize in bytes before rotation; zero uses 100MB, negative disables rotation
	MaxSize  int64 `yaml:"max_size"`
	MaxFiles int   `yaml:"max_files"`
}

// NewFileSink creates the directory if needed and opens the current log file
func NewFileSink(cfg FileSinkConfig) (*FileSink, error) {
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	s := &FileSink{
		basePath: cfg.BasePath,
		maxSize:  cfg.MaxSize,
		maxFiles: cfg.MaxFiles,
		now:      time.Now,
	}
	if s.maxSize == 0 {
		s.maxSize = 100 * 1024 * 1024
	}
	if s.maxFiles <= 0 {
		s.maxFiles = 10
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSink) path() string {
	return filepath.Join(s.basePath, fileSinkName)
}

func (s *FileSink) open() error {
	file, err := os.OpenFile(s.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	s.file = file
	s.encoder = json.NewEncoder(file)
	return nil
}

// Record appends rec, rotating first if the file is full
func (s *FileSink) Record(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("audit file sink closed")
	}
	var rotateErr error
	if s.maxSize > 0 {
		if info, err := s.file.Stat(); err == nil && info.Size() >= s.maxSize {
			if err := s.rotate(); err != nil {
				rotateErr = fmt.Errorf("failed to rotate audit log: %w", err)
			}
		}
	}
	if s.file == nil {
		return rotateErr
	}
	if err := s.encoder.Encode(rec); err != nil {
		return errors.Join(rotateErr, fmt.Errorf("failed to write audit record: %w", err))
	}
	return rotateErr
}

// rotate moves the current file aside and opens a fresh one. The current file is
// reopened whatever happens, so a failed rotation never leaves the sink without a file.
func (s *FileSink) rotate() error {
	err := s.file.Close()
	s.file = nil

	if err == nil {
		rotated := filepath.Join(s.basePath, fmt.Sprintf("authz-audit-%s.log", s.now().UTC().Format("20060102T150405.000000000")))
		if err = os.Rename(s.path(), rotated); err == nil {
			err = s.prune()
		}
	}
	if openErr := s.open(); openErr != nil {
		return errors.Join(err, openErr)
	}
	return err
}

// prune keeps the newest maxFiles rotated files. Names sort by timestamp.
func (s *FileSink) prune() error {
	files, err := filepath.Glob(filepath.Join(s.basePath, "authz-audit-*.log"))
	if err != nil {
		return err
	}
	if len(files) <= s.maxFiles {
		return nil
	}
	sort.Strings(files)
	for _, f := range files[:len(files)-s.maxFiles] {
		if err := os.Remove(f); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the current file
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ReadRecords reads up to count records from the current file; count <= 0 reads all
func (s *FileSink) ReadRecords(count int) ([]*Record, error) {
	file, err := os.Open(s.path())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var records []*Record
	decoder := json.NewDecoder(file)
	for count <= 0 || len(records) < count {
		var rec Record
		if err := decoder.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode audit record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, nil
}
