package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSpec  = errors.New("invalid container spec")
	ErrInterrupted  = errors.New("interrupted")
	ErrWaitTimeout  = errors.New("wait timeout")
	ErrWaitFailed   = errors.New("wait failed")
	ErrResolution   = errors.New("start order resolution failed")
	ErrEngineCall   = errors.New("engine call failed")
	ErrCheckCleanup = errors.New("checker cleanup failed")
)

// CycleError reports a dependency cycle. Names lists the participants in
// traversal order; the first name closes the cycle.
type CycleError struct {
	Names []string
}

func (e *CycleError) Error() string {
	if len(e.Names) == 0 {
		return "dependency cycle detected"
	}
	return fmt.Sprintf("dependency cycle detected: %s -> %s", strings.Join(e.Names, " -> "), e.Names[0])
}

func (e *CycleError) Unwrap() error { return ErrResolution }

// UnresolvedDependencyError reports a dependency that no spec provides.
type UnresolvedDependencyError struct {
	Name       string
	Dependency string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("%s: unresolved dependency %q", e.Name, e.Dependency)
}

func (e *UnresolvedDependencyError) Unwrap() error { return ErrResolution }

// EngineCallError wraps a failed container engine call.
type EngineCallError struct {
	Op        string
	Container string
	Err       error
}

func (e *EngineCallError) Error() string {
	return fmt.Sprintf("%s: failed to %s container: %v", e.Container, e.Op, e.Err)
}

func (e *EngineCallError) Unwrap() []error { return []error{ErrEngineCall, e.Err} }

// WaitTimeoutError is returned for an unknown verdict.
type WaitTimeoutError struct {
	Container string
	Waited    string
	Verdict   WaitVerdict
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("%s: Timeout after %d ms while waiting %s", e.Container, e.Verdict.ElapsedMs(), e.Waited)
}

func (e *WaitTimeoutError) Unwrap() error { return ErrWaitTimeout }

// WaitFailedError is returned for a negative verdict.
type WaitFailedError struct {
	Container string
	Waited    string
	Verdict   WaitVerdict
}

func (e *WaitFailedError) Error() string {
	return fmt.Sprintf("%s: Expectations failed after %d ms while waiting %s", e.Container, e.Verdict.ElapsedMs(), e.Waited)
}

func (e *WaitFailedError) Unwrap() error { return ErrWaitFailed }

// CleanupError is a non-fatal failure while releasing a checker's resources.
type CleanupError struct {
	Checker string
	Err     error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("clean up %s: %v", e.Checker, e.Err)
}

func (e *CleanupError) Unwrap() []error { return []error{ErrCheckCleanup, e.Err} }
