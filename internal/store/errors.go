package store

import "errors"

var (
	ErrorNotFound       = errors.New("not_found")
	ErrorConflict       = errors.New("version_conflict")
	ErrorDuplicateEntry = errors.New("duplicate_entry")
)
