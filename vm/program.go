package vm

import (
	"math/rand"
	"sync"
	"time"
	"unsafe"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Program object & roots (Component G)
// ---------------------------------------------------------------------------
//
// Program owns the immutable, snapshot-restorable half of the heap:
// classes, functions, the dispatch table, interned symbols/selectors,
// and the handful of singleton objects (null, false, true, the empty
// array and string, the object class hierarchy) that every piece of
// running code assumes exist. Program objects live in their own
// mark-compact-only OldSpace (space); the ordinary generational process
// heap that mutators allocate into is Shared, a separate TwoSpaceHeap.
// Program objects are never scavenged by the ordinary process-heap
// scavenger (heap.go/scavenger.go), only by Program GC (programgc.go).
type Program struct {
	ID uuid.UUID

	// space holds program objects: classes, functions, interned
	// strings, the dispatch table's targets. It is distinct from
	// Shared, the generational heap ordinary process mutators allocate
	// into; only Program GC ever moves objects in space, and only
	// collect_new_space/collect_old_space (Components E/F) ever move
	// objects in Shared.
	space *OldSpace
	Shared *TwoSpaceHeap

	Cfg  *Config
	Rand *rand.Rand

	Symbols   *SymbolTable
	Selectors *SelectorTable
	Classes   *ClassTable
	Dispatch  *DispatchTable
	Ports     *PortRegistry

	// Intrinsics and DefaultMethodEntry feed SetupDispatchTableIntrinsics
	// (§6's setup_dispatch_table_intrinsics): Intrinsics supplies a
	// native fast path per selector when an embedder has registered one,
	// DefaultMethodEntry is the fallback entry point used when it
	// hasn't. Both are nil-safe to leave unset -- an embedder with no
	// native codegen backend of its own just never registers anything,
	// and every entry falls back to DefaultMethodEntry (nil, meaning
	// "recompute from the target Function's own bytecode entry" -- see
	// SetupDispatchTableIntrinsics).
	Intrinsics         *IntrinsicsTable
	DefaultMethodEntry unsafe.Pointer

	// Singleton roots. False is exactly 2 words above Null, and True is
	// exactly 2 words above False, in that order -- see
	// checkSingletonLayout.
	Null  Value
	False Value
	True  Value

	EmptyArray  Value
	EmptyString Value

	ObjectClass Value
	ClassClass  Value // the meta-meta-class: ClassClass.Class == ClassClass

	// StackOverflowError and the three canned failure-message strings
	// are allocated once so an out-of-memory or stack-overflow
	// condition never itself needs to allocate to report itself.
	StackOverflowError Value
	OutOfMemoryMessage  Value
	NoSuchMethodMessage Value
	WrongArgCountMessage Value

	EntryFunction Value

	breakpoints *BreakpointTable

	// processListMu guards add/remove of processes and the main-process
	// field only, per §5 -- it is not a general program lock.
	processListMu sync.Mutex
	processes     []*ProcessHandle
	mainProcessID uuid.UUID
}

// NewProgram creates an uninitialized program; call Initialize before
// using it for anything but constructing it for a test fixture.
func NewProgram(cfg *Config) *Program {
	return &Program{
		space:       NewOldSpace(cfg.Heap.SemiSpaceSize * 4),
		Shared:      NewTwoSpaceHeap(cfg),
		Cfg:         cfg,
		Rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		Symbols:     NewSymbolTable(),
		Selectors:   NewSelectorTable(),
		Classes:     NewClassTable(),
		Dispatch:    NewDispatchTable(),
		Ports:       NewPortRegistry(),
		Intrinsics:  NewIntrinsicsTable(),
		breakpoints: NewBreakpointTable(),
		ID:          uuid.New(),
	}
}

// allocateOld allocates o in program space. Program bootstrap and
// class/function loading run under a no-allocation-failure scope -- the
// program space is presized generously enough by NewProgram that this
// should never legitimately fail; if it does, that is itself the bug
// §7 calls "should never happen", so this panics rather than threading
// an error return through every bootstrap call site.
func (p *Program) allocateOld(o HeapObj) Value {
	v, ok := p.space.TryAllocate(o)
	if !ok {
		panic(ErrOutOfMemory)
	}
	return v
}

// Initialize bootstraps the class hierarchy and the null/false/true
// singleton triple. Grounded on Program::Initialize in the original
// Fletch/Dartino program.cc, which allocates exactly these objects,
// in exactly this order, before anything else can run.
func (p *Program) Initialize() {
	// ClassClass is the meta-meta-class: its own Class field points at
	// itself. NewClass needs a Value for the class argument before
	// ClassClass exists, so it's patched in after allocation.
	classClass := NewClass(0, "Class", 0, FormatClass, nil)
	classClassValue := p.allocateOld(classClass)
	classClass.Header.Class = classClassValue
	p.ClassClass = classClassValue

	objectClass := NewClass(classClassValue, "Object", 0, FormatInstance, nil)
	p.ObjectClass = p.allocateOld(objectClass)

	nullClass := NewClass(classClassValue, "Null", p.ObjectClass, FormatInstance, nil)
	nullClassValue := p.allocateOld(nullClass)
	booleanClass := NewClass(classClassValue, "Boolean", p.ObjectClass, FormatInstance, nil)
	booleanClassValue := p.allocateOld(booleanClass)

	// Null, False, True must be allocated back-to-back with nothing
	// else allocated in between, and each must occupy the same logical
	// size, so that the original implementation's "exactly 2 words
	// apart" address invariant is satisfiable at all. A Go object's
	// address is not under this package's control the way a raw
	// semi-space bump pointer's is, so the invariant is re-expressed as
	// an allocation-order adjacency check -- see checkSingletonLayout --
	// rather than pointer arithmetic; see DESIGN.md.
	nullObj := NewInstance(nullClassValue, 1)
	p.Null = p.allocateOld(nullObj)
	falseObj := NewInstance(booleanClassValue, 1)
	p.False = p.allocateOld(falseObj)
	trueObj := NewInstance(booleanClassValue, 1)
	p.True = p.allocateOld(trueObj)
	p.checkSingletonLayout()

	nullObj.Slots[0] = FromSmallInt(p.Rand.Int63n(MaxSmallInt))

	p.EmptyArray = p.allocateOld(NewArray(p.classFor("Array", classClassValue), 0))
	p.EmptyString = p.allocateOld(NewString(p.classFor("String", classClassValue), ""))

	stackOverflowClass := p.classFor("StackOverflowError", classClassValue)
	p.StackOverflowError = p.allocateOld(NewInstance(stackOverflowClass, 0))
	p.OutOfMemoryMessage = p.allocateOld(NewString(p.EmptyString.Obj().(*ByteArray).Class, "out of memory"))
	p.NoSuchMethodMessage = p.allocateOld(NewString(p.EmptyString.Obj().(*ByteArray).Class, "does not understand"))
	p.WrongArgCountMessage = p.allocateOld(NewString(p.EmptyString.Obj().(*ByteArray).Class, "wrong number of arguments"))

	for _, c := range []Value{classClassValue, p.ObjectClass, nullClassValue, booleanClassValue} {
		p.Classes.Register(c)
	}
}

// classFor is a bootstrap convenience: look up a class already
// registered by name, or synthesize a minimal placeholder rooted at
// Object so later stages (tests, a real image loader) have something
// to refine. Real class definitions arriving from a compiled image
// replace these placeholders wholesale before user code runs.
func (p *Program) classFor(name string, metaClass Value) Value {
	if c, ok := p.Classes.Lookup(name); ok {
		return c
	}
	c := NewClass(metaClass, name, p.ObjectClass, FormatInstance, nil)
	v := p.allocateOld(c)
	p.Classes.Register(v)
	return v
}

// checkSingletonLayout verifies the adjacency invariant described in
// Initialize's comment, using allocation order rather than pointer
// arithmetic. Panics on violation: a broken singleton layout means
// boolean identity checks elsewhere in a real interpreter (which would
// use address arithmetic directly) can no longer be trusted.
func (p *Program) checkSingletonLayout() {
	objs := p.space.objects
	n := len(objs)
	if n < 3 {
		panic("checkSingletonLayout: program heap too small to hold null/false/true")
	}
	nullIdx, falseIdx, trueIdx := n-3, n-2, n-1
	if ValueOf(objs[nullIdx]) != p.Null || ValueOf(objs[falseIdx]) != p.False || ValueOf(objs[trueIdx]) != p.True {
		panic("checkSingletonLayout: null/false/true were not allocated contiguously")
	}
}

// IterateRoots visits every program root in a fixed order: the
// singleton triple, the empty array/string, ObjectClass and ClassClass,
// the canned error objects and the entry function first; then any extra
// roots supplied by the caller; then every class registered in the
// ClassTable; then the dispatch table's targets; then the string object
// bound to each interned symbol. Selectors carry no bound Value. The
// breakpoint table is not visited here; program GC visits it separately
// through BreakpointTable.VisitPointers.
//
// Safe to call repeatedly with different visitors in the same GC cycle
// (e.g. once to mark, once to fix up addresses after a compaction):
// every Value it visits is written back to its owning field or table
// before returning, so a later call always sees the previous call's
// result rather than a stale copy.
func (p *Program) IterateRoots(vis PointerVisitor, extra ...Value) {
	roots := []Value{
		p.Null, p.False, p.True,
		p.EmptyArray, p.EmptyString,
		p.ObjectClass, p.ClassClass,
		p.StackOverflowError, p.OutOfMemoryMessage, p.NoSuchMethodMessage, p.WrongArgCountMessage,
		p.EntryFunction,
	}
	roots = append(roots, extra...)
	names, classes := p.Classes.Snapshot()
	roots = append(roots, classes...)

	ForEachRoot(roots, vis)

	p.Null, p.False, p.True = roots[0], roots[1], roots[2]
	p.EmptyArray, p.EmptyString = roots[3], roots[4]
	p.ObjectClass, p.ClassClass = roots[5], roots[6]
	p.StackOverflowError, p.OutOfMemoryMessage, p.NoSuchMethodMessage, p.WrongArgCountMessage = roots[7], roots[8], roots[9], roots[10]
	p.EntryFunction = roots[11]
	p.Classes.ReplaceSnapshot(names, roots[12+len(extra):])

	p.Dispatch.VisitTargets(vis)

	for id := uint32(0); id < uint32(p.Symbols.Len()); id++ {
		if v, ok := p.Symbols.ValueByID(id); ok {
			p.Symbols.Bind(id, vis.VisitSlot(v))
		}
	}
}

// ExitKind classifies how a process terminated, for ExitCode's mapping.
type ExitKind int

const (
	ExitNormal ExitKind = iota
	ExitUncaughtException
	ExitOutOfMemory
	ExitCompileTimeError
	ExitKilled
	exitShouldKill // unreachable sentinel; see ErrShouldKill
)

// ExitCode maps a process's ExitKind to the process's exit code,
// grounded on Program::ExitCode's switch in program.cc. exitShouldKill
// is a programming-error sentinel: a correctly functioning scheduler
// never produces it, so seeing it here indicates a bug upstream, and
// ExitCode reports that with ErrShouldKill rather than returning a
// plausible-looking code.
func ExitCode(kind ExitKind) (int, error) {
	switch kind {
	case ExitNormal:
		return 0, nil
	case ExitUncaughtException:
		return 1, nil
	case ExitOutOfMemory:
		return 2, nil
	case ExitCompileTimeError:
		return 3, nil
	case ExitKilled:
		return 4, nil
	case exitShouldKill:
		return -1, ErrShouldKill
	default:
		return -1, ErrShouldKill
	}
}

// Breakpoints returns the program's breakpoint table.
func (p *Program) Breakpoints() *BreakpointTable { return p.breakpoints }

// ProgramSpaceUsed and ProgramSpaceSize report program space's current
// word usage and budget, for embedders that want to log or export heap
// statistics without reaching into the unexported space field.
func (p *Program) ProgramSpaceUsed() int { return p.space.Used() }
func (p *Program) ProgramSpaceSize() int { return p.space.Size() }

// InternSymbol interns name in the program's symbol table and ensures
// it is bound to a heap string object, allocating one on first use.
func (p *Program) InternSymbol(name string) Value {
	id := p.Symbols.Intern(name)
	if v, ok := p.Symbols.ValueByID(id); ok {
		return v
	}
	v := p.allocateOld(NewString(p.EmptyString.Obj().(*ByteArray).Class, name))
	p.Symbols.Bind(id, v)
	return v
}
