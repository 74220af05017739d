package service

import "errors"

// Sentinel kinds for ranking engine errors.
var (
	// ErrUserNotFound is the one expected failure: a context query for a user
	// with no score in the game's index.
	ErrUserNotFound = errors.New("user has no score for this game")

	// ErrInconsistentWrite means a just-written entry could not be read back.
	// That is a store contract violation, never a caller mistake.
	ErrInconsistentWrite = errors.New("score write/read inconsistency")
)
