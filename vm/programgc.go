package vm

// ---------------------------------------------------------------------------
// Program GC (Component H)
// ---------------------------------------------------------------------------
//
// CollectGarbage is the single entrypoint for a full, strictly ordered
// collection of both halves of the heap together: the mutable process
// heap (Shared) and the immutable-but-relocatable program space
// (Program.space). The ordering matters because program-space scavenge
// (step 6) needs the process heap's liveness already settled by steps
// 2-3, and because every stack has to be in its cooked (pointer-free)
// form before program space is allowed to move any Function.

// CollectGarbage runs one full program GC cycle, per §4.H's 9 steps.
// processes is every process the caller's scheduler currently knows
// about; walker resolves stacks to their current bytecode pointer so
// they can be cooked and uncooked around the program-space scavenge.
func (p *Program) CollectGarbage(processes []Process, walker FrameWalker) {
	// 1. Clear dispatch-table code slots: they cache raw entry points
	// into Function bytecode that step 6 may relocate.
	p.Dispatch.ClearCodePointers()

	sharedRoots, spans := p.sharedRoots(processes)

	// 2. Shared old-space GC, so no old->new floating garbage remains to
	// confuse program-space liveness inference in step 6.
	p.Shared.CollectOldSpace(p.Cfg, sharedRoots, p.Ports)

	// 3. New-space scavenge of the process heap, precise now that step 2
	// pruned global reachability.
	p.Shared.Scavenge(p.Cfg, sharedRoots, p.Ports)

	// sharedRoots mutated its backing slice in place across both calls;
	// feed the final Values back into each process, since Process's
	// root API is visitor-based rather than by-reference.
	writeBackSharedRoots(processes, sharedRoots, spans)

	// 4. Chain every process's current stack into a singly linked list.
	stackChain := chainStacks(processes)

	// 5. Cook every chained stack: replace each process's absolute
	// bytecode pointer with a (function, offset) pair, so program space
	// can move functions without invalidating any process's live
	// program counter.
	cooked := cookStacks(processes, walker)

	// 6. Program-space scavenge: program roots, then every process's
	// direct program-space pointers, then every pointer stored inside
	// process-heap objects (the cooked-heap-object-pointer-visitor pass,
	// "cooked" because stacks are already cooked by step 5 and so no
	// longer hold a raw Function-relative pointer that would be missed).
	p.scavengeProgramSpace(processes, cooked)

	// 7. Uncook and unchain stacks, reversing step 5 with the recorded
	// (now possibly-relocated) function/offset pairs.
	uncookStacks(processes, walker, cooked)
	unchainStacks(stackChain)

	// 8. Rebuild the breakpoint map keyed on each breakpoint's
	// (possibly new) function.bytecode_base + offset.
	p.breakpoints.UpdateBreakpoints()

	// 9. Recompute dispatch table code pointers now that step 6 may
	// have moved their target functions, via the same intrinsics-table
	// fill setup_dispatch_table_intrinsics performs in the original.
	p.Dispatch.SetupDispatchTableIntrinsics(p.Cfg, p.Intrinsics, p.DefaultMethodEntry)

	if p.Cfg.Debug.ValidateHeaps {
		if err := p.ValidateHeaps(processes); err != nil {
			panic(err)
		}
	}

	logProgramStats(p.Cfg, "collect_garbage: program space %d/%d words, shared new %d/%d, shared old %d/%d",
		p.space.Used(), p.space.Size(),
		p.Shared.NewSpace().Used(), p.Shared.NewSpace().Size(),
		p.Shared.OldSpace().Used(), p.Shared.OldSpace().Size())
}

// sharedRoots collects every Value root the shared process heap needs
// for steps 2/3: every process's current stack, followed by every
// process's own roots (saved registers, a current-exception slot --
// whatever IterateRoots visits beyond the stack). Process.IterateRoots
// takes a visitor rather than exposing its roots by reference, so the
// per-process span each process contributed is recorded in spans: once
// Scavenge/CollectOldSpace have mutated the returned slice in place,
// writeBackSharedRoots replays each span through IterateRoots again so
// the relocated Values actually reach the process, not just a
// disconnected copy of them.
func (p *Program) sharedRoots(processes []Process) ([]Value, []rootSpan) {
	var roots []Value
	for _, proc := range processes {
		if s := proc.Stack(); s != 0 {
			roots = append(roots, s)
		}
	}
	spans := make([]rootSpan, 0, len(processes))
	for _, proc := range processes {
		start := len(roots)
		collector := &rootCollector{}
		proc.IterateRoots(collector)
		roots = append(roots, collector.roots...)
		spans = append(spans, rootSpan{proc: proc, start: start, count: len(collector.roots)})
	}
	return roots, spans
}

// rootSpan records which slice of a flattened roots slice came from
// which process's IterateRoots call, so the relocated Values can be
// replayed back to that same process afterward.
type rootSpan struct {
	proc  Process
	start int
	count int
}

// writeBackSharedRoots stores stacks back via SetStack and replays each
// process's own root span back through IterateRoots, completing the
// round-trip sharedRoots started.
func writeBackSharedRoots(processes []Process, roots []Value, spans []rootSpan) {
	idx := 0
	for _, proc := range processes {
		if s := proc.Stack(); s != 0 {
			if roots[idx] != s {
				proc.SetStack(roots[idx])
			}
			idx++
		}
	}
	for _, span := range spans {
		replay := &replayVisitor{values: roots[span.start : span.start+span.count]}
		span.proc.IterateRoots(replay)
	}
}

// rootCollector is a PointerVisitor that just records every Value it is
// handed, for collecting a process's roots into a plain slice before
// handing them to ForEachRoot against the shared heap.
type rootCollector struct {
	roots []Value
}

func (c *rootCollector) VisitSlot(v Value) Value {
	c.roots = append(c.roots, v)
	return v
}

// replayVisitor feeds back a pre-computed sequence of Values in call
// order. Used to hand a just-relocated roots span back to a
// collaborator (Process) whose root API is visitor-based, by calling
// that same visitor-based method a second time with a visitor that
// replays the relocated results instead of recomputing them.
type replayVisitor struct {
	values []Value
	i      int
}

func (r *replayVisitor) VisitSlot(Value) Value {
	v := r.values[r.i]
	r.i++
	return v
}

// scavengeProgramSpace is step 6. It mark-compacts program space (the
// only strategy program space ever uses; unlike the shared heap it has
// no paired new-space generation to scavenge into) and fixes up every
// pointer into it: program roots (via IterateRoots, which also
// round-trips the dispatch table's targets), every process's direct
// program-space pointers, cooked stack frames, and every pointer any
// surviving process-heap object holds into program space (the class
// pointer of every Instance/Array/etc., visited via VisitClassPointer
// rather than the ordinary VisitObject pass, since ordinary
// process-heap traversals never touch class pointers -- this is the
// cooked-heap-object-pointer-visitor pass §4.H step 6 names).
func (p *Program) scavengeProgramSpace(processes []Process, cooked map[Value]cookedFrame) {
	// Process.IterateProgramPointers is visitor-based and (per its
	// contract, the same one Stack.Next and Program's own fields
	// follow) expected to store back whatever the visitor returns
	// itself, so it is handed the live mark/fixup visitor directly
	// rather than flattened through a recording copy the way
	// sharedRoots must for the shared-heap GC's []Value-shaped API.
	m := newMarker(p.space)
	p.IterateRoots(m)
	for _, proc := range processes {
		proc.IterateProgramPointers(m)
	}
	for _, frame := range cooked {
		m.VisitSlot(frame.function)
	}
	p.breakpoints.VisitPointers(m)
	p.visitSharedClassPointers(m)
	m.drain()

	moved := compactOldSpaceMoves(p.space, func(vis PointerVisitor) {
		p.IterateRoots(vis)
		for _, proc := range processes {
			proc.IterateProgramPointers(vis)
		}
		visitCookedFrames(cooked, vis)
		p.breakpoints.VisitPointers(vis)
		p.visitSharedClassPointers(vis)
	})

	// compactOldSpaceMoves's own fixup pass (VisitObject over every
	// survivor) deliberately never touches a Header.Class field -- that
	// is the one slot VisitObject always skips, since ordinary
	// process-heap traversals never need to relocate a class. Here,
	// unlike the shared heap's compaction, the classes themselves live
	// in the space that just moved, so every surviving program object's
	// own class pointer needs the same address-mapping fixup its other
	// slots just got, or a class lookup by identity (e.g. "is this the
	// Array class") would compare against a stale, pre-move Value.
	classFix := &addressMappingVisitor{moved: moved}
	for _, o := range p.space.objects {
		VisitClassPointer(ValueOf(o), classFix)
	}

	p.space.ClearMarkBits()
}

// visitSharedClassPointers rewrites the class pointer of every object
// currently resident in the shared heap's new-space and old-space
// through vis, via VisitClassPointer -- the one traversal where a
// process-heap object's class pointer (otherwise never touched by
// ordinary scavenge/mark-sweep) needs to track a class that program
// space compaction just relocated.
func (p *Program) visitSharedClassPointers(vis PointerVisitor) {
	p.Shared.NewSpace().IterateObjects(func(o HeapObj) { VisitClassPointer(ValueOf(o), vis) })
	p.Shared.OldSpace().IterateObjects(func(o HeapObj) { VisitClassPointer(ValueOf(o), vis) })
}
