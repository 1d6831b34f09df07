package vfs

import (
	"errors"
	"strings"
)

// An UnsupportedOperationError is returned whenever a capability is not advertised by
// an implementation, e.g. by compositions when no child supports an operation.
type UnsupportedOperationError struct {
	Message string
	Cause   error
}

func (e *UnsupportedOperationError) Error() string {
	return "UnsupportedOperationError: " + e.Message
}

// Unwrap returns nil or the cause.
func (e *UnsupportedOperationError) Unwrap() error {
	return e.Cause
}

// A ResourceNotFoundError is returned if a path names a non-existing file which is
// required to complete an operation.
type ResourceNotFoundError struct {
	Path  Path
	Cause error
}

func (e *ResourceNotFoundError) Error() string {
	return "ResourceNotFoundError: " + e.Path.String()
}

// Unwrap returns nil or the cause.
func (e *ResourceNotFoundError) Unwrap() error {
	return e.Cause
}

// A DirectoryNotFoundError is returned if the parent of a path does not exist or a
// file is encountered as an intermediate segment.
type DirectoryNotFoundError struct {
	Path  Path
	Cause error
}

func (e *DirectoryNotFoundError) Error() string {
	return "DirectoryNotFoundError: " + e.Path.String()
}

// Unwrap returns nil or the cause.
func (e *DirectoryNotFoundError) Unwrap() error {
	return e.Cause
}

// A FileExistsError is returned when creating over an existing file and the mode
// forbids it.
type FileExistsError struct {
	Path Path
}

func (e *FileExistsError) Error() string {
	return "FileExistsError: " + e.Path.String()
}

// A DirectoryExistsError is returned when an existing directory occupies the path of
// an entry about to be created.
type DirectoryExistsError struct {
	Path Path
}

func (e *DirectoryExistsError) Error() string {
	return "DirectoryExistsError: " + e.Path.String()
}

// A NoAccessError is returned if a stream's access flags do not permit the requested
// I/O, or if the share masks of already open streams refuse a new one.
type NoAccessError struct {
	Path   Path
	Access Access
}

func (e *NoAccessError) Error() string {
	switch e.Access {
	case ReadAccess:
		return "NoReadAccessError: " + e.Path.String()
	case WriteAccess:
		return "NoWriteAccessError: " + e.Path.String()
	default:
		return "NoAccessError: " + e.Path.String()
	}
}

// An IOError is returned on structural violations, like creating a file below a file,
// deleting a non-empty directory without recursion or moving over an existing entry.
type IOError struct {
	Message string
	Path    Path
	Cause   error
}

func (e *IOError) Error() string {
	return "IOError: " + e.Message + ": " + e.Path.String()
}

// Unwrap returns nil or the cause.
func (e *IOError) Unwrap() error {
	return e.Cause
}

// An AlreadyClosedError is returned for operations on a closed filesystem, stream or
// observer.
type AlreadyClosedError struct {
	What string
}

func (e *AlreadyClosedError) Error() string {
	return "AlreadyClosedError: " + e.What
}

// An InvalidPathError is returned for paths or filter patterns which are rejected
// before touching any backend, like an empty filter or a forbidden trailing slash.
type InvalidPathError struct {
	Path    Path
	Message string
}

func (e *InvalidPathError) Error() string {
	return "InvalidPathError: " + e.Message + ": " + e.Path.String()
}

// An AggregateError combines multiple underlying failures, e.g. from observer disposal
// or event delivery.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	sb := &strings.Builder{}
	sb.WriteString("AggregateError: ")
	for i, err := range e.Errors {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap returns the first underlying error, if any.
func (e *AggregateError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[0]
}

// aggregate folds a list of errors into nil, the single error or an *AggregateError.
func aggregate(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &AggregateError{Errors: errs}
	}
}

// IsNotFound tells if err denotes a missing file or directory.
func IsNotFound(err error) bool {
	var rnf *ResourceNotFoundError
	var dnf *DirectoryNotFoundError
	return errors.As(err, &rnf) || errors.As(err, &dnf)
}

// IsNotSupported tells if err denotes a missing capability.
func IsNotSupported(err error) bool {
	var e *UnsupportedOperationError
	return errors.As(err, &e)
}

// IsNoAccess tells if err denotes refused stream access.
func IsNoAccess(err error) bool {
	var e *NoAccessError
	return errors.As(err, &e)
}

// IsExists tells if err denotes an entry which is already there.
func IsExists(err error) bool {
	var fe *FileExistsError
	var de *DirectoryExistsError
	return errors.As(err, &fe) || errors.As(err, &de)
}

// IsAlreadyClosed tells if err denotes a use-after-close.
func IsAlreadyClosed(err error) bool {
	var e *AlreadyClosedError
	return errors.As(err, &e)
}
