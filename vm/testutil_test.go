package vm

import "unsafe"

// ---------------------------------------------------------------------------
// Shared test fixtures
// ---------------------------------------------------------------------------
//
// fakeProcess is the minimal Process implementation these tests need: a
// stack, a handful of "saved register" style roots, and a handful of
// direct program-space pointers, each visited exactly the way a real
// scheduler's Process implementation is expected to -- read, hand to the
// visitor, store back whatever it returns.

type fakeProcess struct {
	id          Value
	stack       Value
	roots       []Value
	programPtrs []Value
	ports       []*Port
}

func (p *fakeProcess) IterateRoots(vis PointerVisitor)          { ForEachRoot(p.roots, vis) }
func (p *fakeProcess) IterateProgramPointers(vis PointerVisitor) { ForEachRoot(p.programPtrs, vis) }
func (p *fakeProcess) Stack() Value                              { return p.stack }
func (p *fakeProcess) SetStack(v Value)                          { p.stack = v }
func (p *fakeProcess) UpdateStackLimit()                         {}
func (p *fakeProcess) Ports() []*Port                            { return p.ports }
func (p *fakeProcess) ProcessID() Value                          { return p.id }

// trackingProcess is a fakeProcess whose SetStack also migrates the
// associated walker's current-bytecode-pointer entry from the old stack
// identity to the new one, the way a real scheduler's own bookkeeping
// would when Program GC tells it a stack relocated.
type trackingProcess struct {
	fakeProcess
	walker *fakeWalker
}

func (p *trackingProcess) SetStack(v Value) {
	if bcp, ok := p.walker.bcp[p.stack]; ok {
		delete(p.walker.bcp, p.stack)
		p.walker.bcp[v] = bcp
	}
	p.stack = v
}

// fakeWalker backs FrameWalker for tests with FunctionTable's linear scan,
// plus a per-stack current-bytecode-pointer slot a test can move around
// to simulate an interpreter's live program counter.
type fakeWalker struct {
	*FunctionTable
	bcp map[Value]unsafe.Pointer
}

func newFakeWalker() *fakeWalker {
	return &fakeWalker{FunctionTable: NewFunctionTable(), bcp: make(map[Value]unsafe.Pointer)}
}

func (w *fakeWalker) ByteCodePointer(stack Value) unsafe.Pointer { return w.bcp[stack] }
func (w *fakeWalker) SetByteCodePointer(stack Value, bcp unsafe.Pointer) {
	w.bcp[stack] = bcp
}

// newTestProgram returns an initialized Program with a small, fast config
// suitable for tests.
func newTestProgram() *Program {
	cfg := DefaultConfig()
	p := NewProgram(cfg)
	p.Initialize()
	return p
}

// identityVisitor is a PointerVisitor that returns every slot unchanged,
// for round-trip tests that only care that a traversal completes and
// leaves everything exactly where it was.
type identityVisitor struct{}

func (identityVisitor) VisitSlot(v Value) Value { return v }
