package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/cipherpoc/cipherpoc/internal/config"
	"github.com/cipherpoc/cipherpoc/internal/crypto"
	"github.com/cipherpoc/cipherpoc/internal/storage"
)

const (
	ExitCodeSuccess             = 0
	ExitCodeGeneric             = 1
	ExitCodeUsage               = 2
	ExitCodeNotFound            = 3
	ExitCodeAuthFailed          = 5
	ExitCodeDependencyMissing   = 6
	ExitCodeIO                  = 7
	ExitCodeConstraintViolation = 8
	ExitCodeQuery               = 9
)

type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ExitError) ExitCode() int {
	if e == nil {
		return ExitCodeGeneric
	}
	return e.Code
}

func asExitError(code int, err error) error {
	if err == nil {
		return nil
	}
	var withExit interface{ ExitCode() int }
	if errors.As(err, &withExit) {
		return err
	}
	return &ExitError{Code: code, Err: err}
}

func mapCommandError(err error) error {
	if err == nil {
		return nil
	}
	var withExit interface{ ExitCode() int }
	if errors.As(err, &withExit) {
		return err
	}

	switch {
	case errors.Is(err, storage.ErrAuthenticationFailed):
		return asExitError(ExitCodeAuthFailed, err)
	case errors.Is(err, storage.ErrEncryptionUnsupported):
		return asExitError(ExitCodeDependencyMissing, err)
	case errors.Is(err, storage.ErrConstraintViolation):
		return asExitError(ExitCodeConstraintViolation, err)
	case errors.Is(err, storage.ErrQuery):
		return asExitError(ExitCodeQuery, err)
	case errors.Is(err, storage.ErrNotFound):
		return asExitError(ExitCodeNotFound, err)
	case errors.Is(err, storage.ErrStorageUnavailable), errors.Is(err, storage.ErrSchemaTooNew):
		return asExitError(ExitCodeIO, err)
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, crypto.ErrInvalidKey):
		return asExitError(ExitCodeUsage, err)
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || errors.Is(err, fs.ErrNotExist) {
		return asExitError(ExitCodeIO, err)
	}

	return asExitError(ExitCodeGeneric, err)
}

func usageErrorf(format string, args ...any) error {
	return &ExitError{
		Code: ExitCodeUsage,
		Err:  fmt.Errorf(format, args...),
	}
}
