package edge

import "errors"

var (
	ErrCacheMiss      = errors.New("cache miss")
	ErrInstallFailed  = errors.New("install failed")
	ErrNotInstalled   = errors.New("controller is not installed")
	ErrInvalidState   = errors.New("invalid controller state")
	ErrSameVersion    = errors.New("version is already active")
	ErrNoController   = errors.New("no active controller")
	ErrInvalidPush    = errors.New("invalid push payload")
	ErrUnknownNotice  = errors.New("unknown notification")
	ErrUnknownSyncTag = errors.New("unknown sync tag")
	ErrNoReplayer     = errors.New("background sync is not configured")
)
