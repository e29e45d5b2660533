package repository

import "errors"

// Store errors shared by the Postgres and file backends
var (
	ErrNotFound      = errors.New("patient not found")
	ErrEmailConflict = errors.New("email already belongs to another patient")
)
