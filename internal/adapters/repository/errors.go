package repository

import "errors"

// Sentinel kinds for repository errors. Lookups of unknown ids return model.ErrNotFound.
var (
	ErrDuplicateID    = errors.New("record with this id already exists")
	ErrInvalidProfile = errors.New("invalid profile")
)
