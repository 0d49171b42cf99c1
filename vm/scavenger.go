package vm

// ---------------------------------------------------------------------------
// Scavenger (Component E)
// ---------------------------------------------------------------------------
//
// A Cheney-style copying collector over new-space: start from the
// roots, copy every reachable object into the reserve semi-space (or
// promote it straight to old-space), and rewrite every pointer found
// along the way to the copy's new location. Objects already copied
// carry a forwarding Value in their Header so a second pointer to the
// same object is rewritten to the same copy rather than duplicated.
type Scavenger struct {
	heap    *TwoSpaceHeap
	cfg     *Config
	forward map[HeapObj]Value // old object -> Value of its new-space or old-space copy
	queue   []HeapObj         // breadth-first worklist of copies still needing their slots scanned
}

func newScavenger(heap *TwoSpaceHeap, cfg *Config) *Scavenger {
	return &Scavenger{heap: heap, cfg: cfg, forward: make(map[HeapObj]Value)}
}

// VisitSlot implements PointerVisitor for the copy pass: Smis pass
// through untouched, already-forwarded pointers are rewritten to their
// forwarding target, and anything else is copied (or promoted) and then
// rewritten.
func (sc *Scavenger) VisitSlot(v Value) Value {
	if !v.IsObject() {
		return v
	}
	h := v.HeaderOf()
	if h.IsForwarded() {
		return h.ForwardingTarget()
	}
	return sc.copy(v)
}

// copy relocates the object v points to, installs a forwarding pointer
// in its old Header, and enqueues the new copy so its own slots get
// scanned in a later round. Objects that survive for the second time
// (Header.age already >= 1 when the scavenge starts) are promoted
// straight to old-space instead of the reserve semi-space -- the
// "promote on second survival" policy from §9's Open Question.
func (sc *Scavenger) copy(v Value) Value {
	old := v.Obj().(HeapObj)
	if nv, ok := sc.forward[old]; ok {
		return nv
	}

	h := old.headerPtr()
	promote := h.Age() >= 1 || !sc.heap.fromSpace.HasRoomFor(old)
	clone := cloneHeapObj(old)
	clone.headerPtr().age = h.Age() + 1

	var nv Value
	var ok bool
	if promote {
		nv, ok = sc.heap.old.TryAllocate(clone)
	} else {
		nv, ok = sc.heap.fromSpace.TryAllocate(clone)
	}
	if !ok {
		// Reserve space/old-space exhausted mid-scavenge; this can only
		// happen if AdjustOldAllocationBudget under-provisioned ahead
		// of a scavenge invoked outside a no-allocation-failure scope.
		panic(ErrOutOfMemory)
	}

	h.Forward(nv)
	sc.forward[old] = nv
	sc.queue = append(sc.queue, clone)
	return nv
}

// cloneHeapObj makes a shallow copy of o's concrete struct, the
// "moving" step of this design (see object.go's package doc comment).
// Slice fields (Slots, Elements, Bytecode, ...) are intentionally
// shared with the original rather than deep-copied: their backing
// arrays hold the payload, not pointers-to-pointers, so aliasing them
// is safe and avoids an allocation per array on every scavenge.
func cloneHeapObj(o HeapObj) HeapObj {
	switch t := o.(type) {
	case *Instance:
		c := *t
		return &c
	case *Array:
		c := *t
		return &c
	case *ByteArray:
		c := *t
		return &c
	case *Function:
		c := *t
		return &c
	case *Class:
		c := *t
		return &c
	case *Stack:
		c := *t
		return &c
	case *BoxedDouble:
		c := *t
		return &c
	case *LargeInteger:
		c := *t
		return &c
	case *Cell:
		c := *t
		return &c
	case *Port:
		c := *t
		return &c
	default:
		panic("cloneHeapObj: unknown object type")
	}
}

// Scavenge runs one new-space collection: copies everything reachable
// from roots (plus the old-space remembered set, which stands in for
// any old-space object that might hold a new-space pointer) into the
// reserve semi-space or old-space, then swaps semi-spaces so the
// just-filled reserve becomes the active new-space.
//
// Returns the number of words promoted into old-space, so callers can
// feed OldSpace.NeedsGarbageCollection / AdjustOldAllocationBudget.
func (h *TwoSpaceHeap) Scavenge(cfg *Config, roots []Value, ports *PortRegistry) int {
	before := h.Stats()
	sc := newScavenger(h, cfg)

	h.fromSpace.Clear()
	oldUsedBefore := h.old.Used()

	ForEachRoot(roots, sc)
	for _, holder := range h.old.RememberedSet() {
		VisitObject(ValueOf(holder), sc)
	}

	for len(sc.queue) > 0 {
		obj := sc.queue[0]
		sc.queue = sc.queue[1:]
		VisitObject(ValueOf(obj), sc)
	}

	h.old.ClearRememberedSet()
	if ports != nil {
		ports.ProcessPorts(sc)
	}

	h.SwapSemiSpaces()
	h.fromSpace.Clear()

	promoted := h.old.Used() - oldUsedBefore
	after := h.Stats()
	logHeapStats(cfg, "scavenge", before, after)
	return promoted
}

// Resolve implements Forwarded for PortRegistry.ProcessPorts: a target
// is alive iff the scavenge that just ran copied it (i.e. it was
// reachable from some root or remembered-set entry already visited).
func (sc *Scavenger) Resolve(v Value) (Value, bool) {
	if !v.IsObject() {
		return v, true
	}
	if v.HeaderOf().IsForwarded() {
		return v.HeaderOf().ForwardingTarget(), true
	}
	return 0, false
}
