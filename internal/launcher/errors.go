package launcher

import (
	"fmt"
	"strings"
)

// FailureKind classifies fatal startup failures.
type FailureKind int

const (
	FailureUnexpected FailureKind = iota
	FailureMissingAppDir
	FailureMissingPackages
	FailurePortInUse
)

func (k FailureKind) String() string {
	switch k {
	case FailureMissingAppDir:
		return "missing app directory"
	case FailureMissingPackages:
		return "missing packages"
	case FailurePortInUse:
		return "port in use"
	default:
		return "unexpected startup error"
	}
}

// StartupError is a fatal launch failure with the instructions that fix it.
type StartupError struct {
	Kind        FailureKind
	Err         error
	Remediation []string
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// ExitCode is the process exit code for this failure. Every startup failure exits with 1.
func (e *StartupError) ExitCode() int {
	return 1
}

// Message renders the error followed by its remediation steps.
func (e *StartupError) Message() string {
	var b strings.Builder
	b.WriteString(e.Error())
	if len(e.Remediation) > 0 {
		b.WriteString("\n\nTo fix this:")
		for i, step := range e.Remediation {
			fmt.Fprintf(&b, "\n  %d. %s", i+1, step)
		}
	}
	return b.String()
}
