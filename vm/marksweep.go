package vm

// ---------------------------------------------------------------------------
// Old-space GC (Component F)
// ---------------------------------------------------------------------------
//
// Alternates between two strategies across successive collections, as
// specified: sweep-after-compacting, then compact-after-sweeping, and
// so on. Both begin with the same mark phase; they differ in what
// happens to unmarked survivors afterwards. Mark-sweep simply drops
// unmarked objects from old-space's object list (Go's own GC then
// reclaims the backing structs, since nothing references them anymore).
// Mark-compact additionally relocates every surviving object to a
// freshly ordered list and fixes up every pointer in the heap that
// referenced one of the moved objects, via an address-mapping visitor --
// this and the snapshot reorder pass (snapshotgc.go) are the places
// outside the scavenger where this package exercises the Header.forward
// field for something other than a same-cycle Cheney copy.

type marker struct {
	old     *OldSpace
	visited map[HeapObj]struct{}
	queue   []HeapObj
}

func newMarker(old *OldSpace) *marker {
	return &marker{old: old, visited: make(map[HeapObj]struct{})}
}

func (m *marker) VisitSlot(v Value) Value {
	if !v.IsObject() {
		return v
	}
	o := v.Obj().(HeapObj)
	if _, seen := m.visited[o]; seen {
		return v
	}
	m.visited[o] = struct{}{}
	if m.old.isMember(o) {
		o.headerPtr().SetMarked(true)
	}
	m.queue = append(m.queue, o)
	return v
}

func (m *marker) run(roots []Value) {
	ForEachRoot(roots, m)
	m.drain()
}

// drain runs the BFS to completion over whatever is currently queued.
// Split out from run so a caller that needs to enqueue roots from
// several distinct sources (program roots, per-process program
// pointers, cooked frames, breakpoints, shared-heap class pointers --
// see Program.scavengeProgramSpace) can queue all of them before paying
// for a single traversal, rather than draining prematurely after the
// first source and leaving the rest unmarked-but-enqueued.
func (m *marker) drain() {
	for len(m.queue) > 0 {
		o := m.queue[0]
		m.queue = m.queue[1:]
		VisitObject(ValueOf(o), m)
	}
}

// sweep drops every unmarked object from old-space's object list.
// Returns the number of words freed.
func (os *OldSpace) sweep() int {
	before := os.used
	survivors := make([]HeapObj, 0, len(os.objects))
	used := 0
	for _, o := range os.objects {
		if o.headerPtr().Marked() {
			survivors = append(survivors, o)
			used += Size(o)
		}
	}
	os.objects = survivors
	os.used = used
	return before - used
}

// addressMappingVisitor rewrites pointers to moved old-space objects to
// point at their new copies. Used by compact to fix up roots, new-space
// objects (which may hold old-to-... no, new space objects never hold
// pointers that need old-space fixups recorded anywhere but directly:
// any Value a new-space object holds that points into old-space is
// fixed up exactly like any other slot), and surviving old-space
// objects themselves.
type addressMappingVisitor struct {
	moved map[HeapObj]Value
}

func (a *addressMappingVisitor) VisitSlot(v Value) Value {
	if !v.IsObject() {
		return v
	}
	if nv, ok := a.moved[v.Obj().(HeapObj)]; ok {
		return nv
	}
	return v
}

// compactOldSpaceMoves relocates every marked object out of old, fixing
// up every pointer that referenced one of them, and returns the
// old-object-to-new-Value mapping it built. visitAll is called once
// with the address-mapping fixup visitor and must drive it across every
// place a pointer into old might live outside old itself -- roots,
// other spaces, and any out-of-band structure (a dispatch table, cooked
// stack frames, a breakpoint table) the caller knows about. This is
// shared by the ordinary shared-heap compactor (TwoSpaceHeap.compactOldSpaceMoves)
// and Program GC's program-space compaction (programgc.go), which needs
// the same relocate-and-fix-up machinery against a standalone *OldSpace
// that has no paired new-space of its own.
func compactOldSpaceMoves(old *OldSpace, visitAll func(vis PointerVisitor)) map[HeapObj]Value {
	moved := make(map[HeapObj]Value, len(old.objects))
	newObjects := make([]HeapObj, 0, len(old.objects))
	used := 0

	for _, o := range old.objects {
		if !o.headerPtr().Marked() {
			continue
		}
		clone := cloneHeapObj(o)
		clone.headerPtr().SetMarked(false)
		newObjects = append(newObjects, clone)
		used += Size(clone)
		nv := ValueOf(clone)
		moved[o] = nv
		o.headerPtr().Forward(nv)
	}

	fix := &addressMappingVisitor{moved: moved}
	visitAll(fix)
	for _, o := range newObjects {
		VisitObject(ValueOf(o), fix)
	}

	old.objects = newObjects
	old.used = used
	return moved
}

// compactOldSpaceMoves is the shared-heap entry point: fix up roots plus
// every object still resident in new-space.
func (h *TwoSpaceHeap) compactOldSpaceMoves(roots []Value) map[HeapObj]Value {
	return compactOldSpaceMoves(h.old, func(vis PointerVisitor) {
		ForEachRoot(roots, vis)
		h.newSpace.IterateObjects(func(o HeapObj) { VisitObject(ValueOf(o), vis) })
	})
}

// oldSpaceForwarded adapts a just-finished sweep or compact to the
// Forwarded interface PortRegistry.ProcessPorts expects.
type oldSpaceForwarded struct {
	moved map[HeapObj]Value // nil for a sweep cycle
	old   *OldSpace
}

func (f oldSpaceForwarded) Resolve(v Value) (Value, bool) {
	if !v.IsObject() {
		return v, true
	}
	o := v.Obj().(HeapObj)
	if f.moved != nil {
		if nv, ok := f.moved[o]; ok {
			return nv, true
		}
		return 0, false
	}
	return v, o.headerPtr().Marked()
}

// CollectOldSpace runs one old-space collection cycle: mark from roots,
// then sweep or compact depending on which strategy ran last time,
// process weak pointers against the result, and clear mark bits for the
// next cycle.
func (h *TwoSpaceHeap) CollectOldSpace(cfg *Config, roots []Value, ports *PortRegistry) {
	before := h.Stats()
	usedBefore := h.old.Used()

	m := newMarker(h.old)
	m.run(roots)

	var fwd oldSpaceForwarded
	if h.old.Compacting() {
		h.sweepOld(ports, &fwd)
		h.old.SetCompacting(false)
	} else {
		h.compactOld(roots, ports, &fwd)
		h.old.SetCompacting(true)
	}

	h.old.ClearMarkBits()
	pointless := h.old.EvaluatePointlessness(usedBefore, cfg.Heap.PointlessnessThreshold)
	if !pointless {
		h.old.ClearHardLimitHit()
	}

	after := h.Stats()
	logHeapStats(cfg, "collect_old_space", before, after)
}

func (h *TwoSpaceHeap) sweepOld(ports *PortRegistry, fwd *oldSpaceForwarded) {
	fwd.old = h.old
	if ports != nil {
		ports.ProcessPorts(*fwd)
	}
	h.old.sweep()
}

func (h *TwoSpaceHeap) compactOld(roots []Value, ports *PortRegistry, fwd *oldSpaceForwarded) {
	moved := h.compactOldSpaceMoves(roots)
	// A port whose target was unmarked before the move is simply
	// absent from moved, which oldSpaceForwarded.Resolve treats as
	// dead -- the same "was it marked" test §4.F specifies, expressed
	// post-move instead of pre-move so a single Resolve implementation
	// serves both compact and sweep.
	if ports != nil {
		fwd.moved = moved
		ports.ProcessPorts(*fwd)
	}
}
