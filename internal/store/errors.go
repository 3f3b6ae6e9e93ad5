package store

import "errors"

// ErrNotFound indicates the requested history row does not exist.
var ErrNotFound = errors.New("download not found")
