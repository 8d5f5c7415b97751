package lode

import (
	"errors"
	"fmt"
	"strings"
)

// Storage failure kinds. A ledger write or read that fails carries one of
// these through a *StorageError; match with errors.Is.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrDiskFull         = errors.New("no space left on device")
	ErrTimeout          = errors.New("operation timed out")
	ErrThrottled        = errors.New("rate limited")
	ErrAuth             = errors.New("authentication failed")
	ErrAccessDenied     = errors.New("access denied")
	ErrNetwork          = errors.New("network error")
	ErrUnclassified     = errors.New("storage error")
)

// StorageError is a ledger or mirror failure. Any StorageError in a flow's
// error chain makes the flow end with storage_failure.
type StorageError struct {
	Kind error
	Op   string // init, write or read
	Path string // dataset for init, object path otherwise
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is matches the error's Kind.
func (e *StorageError) Is(target error) bool { return errors.Is(e.Kind, target) }

// NewStorageError returns a StorageError of the given kind.
func NewStorageError(kind error, op, path string, err error) *StorageError {
	return &StorageError{Kind: kind, Op: op, Path: path, Err: err}
}

// WrapWriteError classifies a failed write to path. nil stays nil.
func WrapWriteError(err error, path string) error { return wrap(err, "write", path) }

// WrapReadError classifies a failed read of path. nil stays nil.
func WrapReadError(err error, path string) error { return wrap(err, "read", path) }

// WrapInitError classifies a failure to open dataset. nil stays nil.
func WrapInitError(err error, dataset string) error { return wrap(err, "init", dataset) }

func wrap(err error, op, path string) error {
	if err == nil {
		return nil
	}
	return NewStorageError(classifyError(err), op, path, err)
}

// IsStorageError reports whether err carries a storage classification.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// kindRules are checked in order against the lowercased error text.
var kindRules = []struct {
	kind     error
	patterns []string
}{
	{ErrNotFound, []string{"no such file", "does not exist", "not found", "enoent", "404", "nosuchkey"}},
	{ErrDiskFull, []string{"no space left", "disk full", "enospc", "quota exceeded"}},
	{ErrTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{ErrThrottled, []string{"slowdown", "rate exceeded", "throttl", "429", "toomanyrequests"}},
	{ErrAuth, []string{"nocredentialproviders", "credentials", "invalidaccesskeyid",
		"signaturedoesnotmatch", "expiredtoken", "401", "unauthorized"}},
	{ErrAccessDenied, []string{"accessdenied", "forbidden", "403"}},
	{ErrNetwork, []string{"connection refused", "no route to host", "network unreachable", "dns", "dial tcp"}},
}

// classifyError picks the storage kind of err from its Timeout method or
// its message. Local filesystem and S3 messages are both recognized.
func classifyError(err error) error {
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, "permission denied", "eacces", "access denied") {
		if containsAny(msg, "accessdenied", "forbidden", "403") {
			return ErrAccessDenied
		}
		return ErrPermissionDenied
	}
	for _, r := range kindRules {
		if containsAny(msg, r.patterns...) {
			return r.kind
		}
	}
	return ErrUnclassified
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
