package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/clinicmail/clinicmail/internal/logger"
)

// jsonFile is a JSON document on disk that heals itself: a missing or empty
// file reads as the empty document, and an unparseable one is moved aside to
// <path>.bak.<unix-ms> before being reset.
type jsonFile struct {
	path  string
	empty []byte
	log   *logger.Logger
	now   func() time.Time
}

func newJSONFile(path string, empty []byte, log *logger.Logger) (*jsonFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	f := &jsonFile{path: path, empty: empty, log: log, now: time.Now}
	if err := f.ensure(); err != nil {
		return nil, err
	}
	return f, nil
}

// ensure creates the file when missing
func (f *jsonFile) ensure() error {
	_, err := os.Stat(f.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat %s: %w", f.path, err)
	}
	f.log.Info().Str("path", f.path).Msg("creating data file")
	return f.writeRaw(f.empty)
}

// read decodes the file into v, recovering from missing, empty or corrupt content.
func (f *jsonFile) read(v any) error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := f.writeRaw(f.empty); err != nil {
			return err
		}
		return json.Unmarshal(f.empty, v)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", f.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		f.log.Warn().Str("path", f.path).Msg("data file is empty, resetting")
		if err := f.writeRaw(f.empty); err != nil {
			return err
		}
		return json.Unmarshal(f.empty, v)
	}

	if err := json.Unmarshal(data, v); err != nil {
		backup := fmt.Sprintf("%s.bak.%d", f.path, f.now().UnixMilli())
		f.log.Error().Err(err).Str("path", f.path).Str("backup", backup).Msg("data file is corrupt, backing up and resetting")
		if err := os.WriteFile(backup, data, 0o644); err != nil {
			return fmt.Errorf("failed to back up %s: %w", f.path, err)
		}
		if err := f.writeRaw(f.empty); err != nil {
			return err
		}
		return json.Unmarshal(f.empty, v)
	}
	return nil
}

// write replaces the file contents with v, indented
func (f *jsonFile) write(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", f.path, err)
	}
	return f.writeRaw(data)
}

func (f *jsonFile) writeRaw(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}
