package vm

import "unsafe"

// ---------------------------------------------------------------------------
// Dispatch table (Component §3/§4 "Dispatch table")
// ---------------------------------------------------------------------------
//
// The dispatch table is the global array optimized call sites index into
// for monomorphic and polymorphic sends, as opposed to a Class's own
// method dictionary (class.go), which is the dynamic-dispatch fallback.
// Each entry caches a function's current bytecode entry point as a raw
// pointer so a call site can jump there without an extra indirection
// through the Function object; that raw pointer is exactly what any
// function-moving GC invalidates, so every such GC must clear it first
// and every entry must be recomputed afterwards before the table is
// trusted again.
type DispatchEntry struct {
	Target   Value          // the Function this entry dispatches to
	Code     unsafe.Pointer // cached entry pointer into Target's bytecode; nil while stale
	Selector int            // interned selector ID this entry answers
}

// DispatchTable is the program-wide array of DispatchEntry.
type DispatchTable struct {
	entries []DispatchEntry
}

func NewDispatchTable() *DispatchTable {
	return &DispatchTable{}
}

// Add appends a new entry pointing at target for selector and returns
// its index. The code pointer is filled in immediately; it will need to
// be recomputed after any subsequent function-moving GC.
func (dt *DispatchTable) Add(target Value, selector int) int {
	idx := len(dt.entries)
	dt.entries = append(dt.entries, DispatchEntry{
		Target:   target,
		Code:     target.Obj().(*Function).EntryPointer(),
		Selector: selector,
	})
	return idx
}

// Entry returns the entry at idx.
func (dt *DispatchTable) Entry(idx int) DispatchEntry { return dt.entries[idx] }

// Len returns the number of entries.
func (dt *DispatchTable) Len() int { return len(dt.entries) }

// ClearCodePointers nils every entry's cached code pointer. Must be
// called before any GC that might move Function objects; see
// Component H step 1. Grounded on Program::ClearDispatchTableIntrinsics,
// which does the same thing to the same effect (the cached pointer is a
// generated-code address an intrinsic or the interpreter trampoline
// fills in, and it is exactly what a function-moving GC invalidates).
func (dt *DispatchTable) ClearCodePointers() {
	for i := range dt.entries {
		dt.entries[i].Code = nil
	}
}

// IntrinsicsTable looks up a hand-written native fast-path entry point
// for a selector, so that a monomorphic call site for a hot primitive
// method (e.g. SmallInteger>>+, Array>>at:) can skip the bytecode
// interpreter entirely. Grounded on the original's IntrinsicsTable
// consulted from Function::ComputeIntrinsic -- this package has no
// native codegen of its own, so the table is just a selector->pointer
// lookup an embedder populates with whatever native trampolines it
// links in, rather than something this package computes from a
// Function's bytecode shape.
type IntrinsicsTable struct {
	bySelector map[int]unsafe.Pointer
}

// NewIntrinsicsTable creates an empty intrinsics table.
func NewIntrinsicsTable() *IntrinsicsTable {
	return &IntrinsicsTable{bySelector: make(map[int]unsafe.Pointer)}
}

// Register installs code as the intrinsic entry point for selector.
func (it *IntrinsicsTable) Register(selector int, code unsafe.Pointer) {
	it.bySelector[selector] = code
}

// ComputeIntrinsic returns the registered intrinsic entry point for
// selector, or nil if none was registered. A nil table (an embedder
// that never set one up) behaves like an empty one.
func (it *IntrinsicsTable) ComputeIntrinsic(selector int) unsafe.Pointer {
	if it == nil {
		return nil
	}
	return it.bySelector[selector]
}

// SetupDispatchTableIntrinsics refills every entry whose code pointer
// was cleared (by ClearCodePointers, or never set): intrinsics provides
// the fast path when one is registered for the entry's selector,
// defaultMethodEntry is the fallback otherwise (the ordinary bytecode
// interpreter's entry point). A nil defaultMethodEntry stands in for
// the original's single shared interpreter trampoline, which this
// package has no equivalent of (no native codegen backend): it falls
// back to the entry's own target Function's bytecode entry point
// instead, so every entry still ends up with a usable Code pointer. An
// entry whose code pointer survived uncleared counts as a hit without
// being touched, same as the original's "already set" short-circuit.
// Grounded on Program::SetupDispatchTableIntrinsics, including its
// print-program-statistics fill-rate report.
func (dt *DispatchTable) SetupDispatchTableIntrinsics(cfg *Config, intrinsics *IntrinsicsTable, defaultMethodEntry unsafe.Pointer) {
	hits := 0
	for i := range dt.entries {
		if dt.entries[i].Code != nil {
			hits++
			continue
		}
		code := intrinsics.ComputeIntrinsic(dt.entries[i].Selector)
		if code != nil {
			hits++
		} else if defaultMethodEntry != nil {
			code = defaultMethodEntry
		} else {
			code = dt.entries[i].Target.Obj().(*Function).EntryPointer()
		}
		dt.entries[i].Code = code
	}
	if n := len(dt.entries); n > 0 {
		logProgramStats(cfg, "dispatch table fill: %.1f%% (%d of %d)", float64(hits)*100.0/float64(n), hits, n)
	}
}

// VisitTargets rewrites every entry's Target pointer through vis. Used
// by program space scavenging, since the dispatch table's targets are
// themselves program roots.
func (dt *DispatchTable) VisitTargets(vis PointerVisitor) {
	for i := range dt.entries {
		dt.entries[i].Target = vis.VisitSlot(dt.entries[i].Target)
	}
}
