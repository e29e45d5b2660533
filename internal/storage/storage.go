// Package storage keeps files uploaded for patients. A stored file is addressed
// by its ref, "<patientID>/<filename>", which is what patient records keep.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/clinicmail/clinicmail/internal/config"
)

// Storage errors
var (
	ErrNotFound   = errors.New("file not found")
	ErrInvalidRef = errors.New("invalid file reference")
)

// Store saves and retrieves patient attachments
type Store interface {
	// Save writes r under the patient's folder and returns the file's ref
	Save(ctx context.Context, patientID, filename string, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Exists(ctx context.Context, ref string) (bool, error)
	Delete(ctx context.Context, ref string) error
}

// New builds the store selected by cfg.Driver
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case config.StorageDriverLocal:
		return NewLocal(cfg.Local.Dir)
	case config.StorageDriverS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Ref builds the ref of filename for a patient. Directory components in
// filename are dropped.
func Ref(patientID, filename string) (string, error) {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if !validSegment(patientID) || !validSegment(name) {
		return "", ErrInvalidRef
	}
	return patientID + "/" + name, nil
}

// SplitRef returns the patient id and filename of a ref
func SplitRef(ref string) (patientID, filename string, err error) {
	patientID, filename, ok := strings.Cut(strings.TrimPrefix(ref, "/"), "/")
	if !ok || !validSegment(patientID) || !validSegment(filename) {
		return "", "", ErrInvalidRef
	}
	return patientID, filename, nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, "/\\\x00")
}
