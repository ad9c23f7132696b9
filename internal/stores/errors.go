package stores

import "errors"

var (
	ErrNotFound       = errors.New("record not found")
	ErrAccountExists  = errors.New("account already exists")
	ErrTokenCollision = errors.New("token already bound to another account")
	ErrBackend        = errors.New("redis backend unavailable")
	ErrCorrupt        = errors.New("record encoding invalid")
)
