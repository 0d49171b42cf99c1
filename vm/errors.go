package vm

import "errors"

// Sentinel errors covering the failure taxonomy: allocation failure is
// recoverable by the caller (retry after a GC, or propagate), the rest
// are terminal for the process or program that hit them. Checked with
// errors.Is so a caller that wraps one with fmt.Errorf("...: %w", err)
// still compares correctly.
var (
	// ErrAllocationFailed names the case of a request that cannot be
	// satisfied from the current space. Space.TryAllocate and
	// TwoSpaceHeap.Allocate report that case with a false result rather
	// than returning this error. It is not itself a fatal condition --
	// the caller is expected to trigger a collection and retry, or fall
	// through to the out-of-memory path if that also fails under a
	// no-allocation-failure scope.
	ErrAllocationFailed = errors.New("vm: allocation failed")

	// ErrOutOfMemory means a collection ran and the heap still cannot
	// satisfy the request; the caller should terminate the owning
	// process with the out-of-memory exit code.
	ErrOutOfMemory = errors.New("vm: out of memory")

	// ErrHeapValidationFailed is returned (wrapped) by
	// Program.ValidateHeaps when an inconsistency is found. This
	// is fatal: the heap is corrupt and continuing would amplify the
	// damage.
	ErrHeapValidationFailed = errors.New("vm: heap validation failed")

	// ErrShouldKill marks a Process.ExitKind value that should be
	// unreachable in a correctly functioning scheduler; seeing it
	// escape to ExitCode indicates a scheduler bug, not a
	// mutator-triggered condition.
	ErrShouldKill = errors.New("vm: process exit kind should_kill is unreachable")
)
