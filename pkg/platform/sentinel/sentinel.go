package sentinel

import "errors"

// Sentinel dependency errors. Stores return these (optionally wrapped) so
// services can translate them into domain errors exactly once.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")
)
