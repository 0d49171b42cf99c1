package vm

import "github.com/google/uuid"

// ---------------------------------------------------------------------------
// Process (external collaborator interface, §6)
// ---------------------------------------------------------------------------
//
// Process is implemented by the scheduler this package does not own.
// The core only ever needs a process to answer four questions: what are
// its roots, what is its current stack, what are its ports, and how do
// we tell it its stack limit changed. Everything else about a process
// (its own bytecode execution state, its links to other processes) is
// invisible here.
type Process interface {
	// IterateRoots visits every Value this process holds outside its
	// stack (e.g. saved registers, a current-exception slot).
	IterateRoots(vis PointerVisitor)

	// IterateProgramPointers visits every program-space pointer this
	// process holds directly (as opposed to through its stack, which
	// program GC cooks/uncooks separately).
	IterateProgramPointers(vis PointerVisitor)

	// Stack returns the process's current stack object.
	Stack() Value

	// SetStack installs a new stack object, e.g. after program GC
	// relocates it.
	SetStack(Value)

	// UpdateStackLimit is called after a collection that may have
	// moved or resized the stack, so the process can recompute how
	// much headroom remains before a stack-overflow check trips.
	UpdateStackLimit()

	// Ports returns the process's registered weak-pointer ports.
	Ports() []*Port

	// ProcessID identifies the process for Port.ProcessID comparisons
	// and registry GC reaping.
	ProcessID() Value
}

// ProcessState tracks whether a process is still runnable, from the
// registry GC's point of view (Component K); the scheduler's richer
// state machine lives entirely on the Process implementation.
type ProcessState int

const (
	ProcessRunning ProcessState = iota
	ProcessTerminated
)

// ProcessHandle is the program's bookkeeping record for a spawned
// process: just enough to support SpawnProcess/ScheduleProcessForDeletion
// and the registry GC sweep, without this package needing to know
// anything about how the process actually runs.
type ProcessHandle struct {
	ID    uuid.UUID
	Proc  Process
	State ProcessState
}

// SpawnProcess registers proc with the program and returns its handle.
func (p *Program) SpawnProcess(proc Process) *ProcessHandle {
	h := &ProcessHandle{ID: uuid.New(), Proc: proc, State: ProcessRunning}
	p.processListMu.Lock()
	p.processes = append(p.processes, h)
	if p.mainProcessID == uuid.Nil {
		p.mainProcessID = h.ID
	}
	p.processListMu.Unlock()
	return h
}

// ScheduleProcessForDeletion marks h terminated; it is not removed from
// the program's process list until the registry GC's next sweep
// (Component K), so that a collection running concurrently with the
// scheduler never observes the list mutating out from under it beyond
// that one guarded field.
func (p *Program) ScheduleProcessForDeletion(h *ProcessHandle) {
	p.processListMu.Lock()
	h.State = ProcessTerminated
	p.processListMu.Unlock()
}

// Processes returns a snapshot of every currently registered process
// handle, live or terminated-but-not-yet-reaped.
func (p *Program) Processes() []*ProcessHandle {
	p.processListMu.Lock()
	defer p.processListMu.Unlock()
	out := make([]*ProcessHandle, len(p.processes))
	copy(out, p.processes)
	return out
}

// IsMainProcess reports whether h is the first process spawned on p.
func (p *Program) IsMainProcess(h *ProcessHandle) bool { return h.ID == p.mainProcessID }
