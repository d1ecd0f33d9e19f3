package cli

import (
	"context"
	"errors"
	"io"

	"github.com/bnema/sandboxer/internal/domain"
)

// Process exit codes by reconciliation error kind.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitValidation = 2
	ExitConflict   = 3
	ExitBuild      = 4
	ExitStart      = 5
	ExitDependency = 6
	ExitTimeout    = 7
	ExitCanceled   = 130
)

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	var re *domain.ReconcileError
	if errors.As(err, &re) {
		err = re.Kind
	}

	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, domain.ErrSpecValidation):
		return ExitValidation
	case errors.Is(err, domain.ErrResourceConflict):
		return ExitConflict
	case errors.Is(err, domain.ErrBuild):
		return ExitBuild
	case errors.Is(err, domain.ErrStart):
		return ExitStart
	case errors.Is(err, domain.ErrDependencyUnavailable):
		return ExitDependency
	case errors.Is(err, domain.ErrTimeout):
		return ExitTimeout
	case errors.Is(err, domain.ErrCanceled), errors.Is(err, context.Canceled):
		return ExitCanceled
	}
	return ExitFailure
}

// PrintError writes err to w and hints when retrying may help.
func PrintError(w io.Writer, err error) {
	_ = cliWriteLine(w, cliRenderError(err.Error()))
	if domain.IsRetryable(err) {
		_ = cliWriteLine(w, cliRenderInfo("This failure is transient; running the command again may succeed."))
	}
}
