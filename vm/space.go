package vm

// ---------------------------------------------------------------------------
// Space (Component B)
// ---------------------------------------------------------------------------
//
// A classic semi-space is a contiguous byte range with a bump pointer.
// Here each heap object is its own Go-allocated struct, so "bump
// allocation" is realized as appending to an ordered slice of HeapObj
// rather than advancing a raw pointer into an arena; Space.used is
// tracked in logical words (via Size) so the budget arithmetic in
// Component B/C/F still behaves exactly as specified. What a byte arena
// buys a C++ implementation -- cache-line locality and a single
// backing allocation -- Go's own per-object GC already buys this
// implementation in exchange for giving up manual layout control; since
// compaction in this design is "rebuild the survivor list in visitation
// order" rather than "memmove bytes", the two approaches converge on the
// same observable behavior from any PointerVisitor's point of view.
//
// No locking guards Space: §5 assumes a single mutator is active at
// collection time and forbids fine-grained heap locking as a non-goal.
type Space struct {
	objects []HeapObj
	used    int
	limit   int
}

// NewSpace creates an empty space with the given word budget.
func NewSpace(limit int) *Space {
	return &Space{limit: limit}
}

// TryAllocate places o in the space if its logical size fits within the
// remaining budget. Returns the zero Value and false (mirroring the
// allocation-failure sentinel of §4.B) if it does not; the caller is
// expected to trigger a collection and retry.
func (s *Space) TryAllocate(o HeapObj) (Value, bool) {
	sz := Size(o)
	if s.used+sz > s.limit {
		return 0, false
	}
	s.used += sz
	s.objects = append(s.objects, o)
	return ValueOf(o), true
}

// Used returns the number of words currently allocated.
func (s *Space) Used() int { return s.used }

// Size returns the space's total word budget.
func (s *Space) Size() int { return s.limit }

// UpdateBaseAndLimit resizes the space's budget, e.g. after
// AdjustOldAllocationBudget recomputes how much old-space should be
// allowed before the next old-space collection.
func (s *Space) UpdateBaseAndLimit(limit int) { s.limit = limit }

// HasRoomFor reports whether o's logical size would currently fit.
func (s *Space) HasRoomFor(o HeapObj) bool {
	return s.used+Size(o) <= s.limit
}

// IterateObjects calls fn once per live object, in allocation order.
// The space must be "flushed" (nothing buffered outside s.objects)
// before this is meaningful for a traversal that must see every object
// exactly once -- true here unconditionally, since TryAllocate appends
// immediately rather than buffering.
func (s *Space) IterateObjects(fn func(HeapObj)) {
	for _, o := range s.objects {
		fn(o)
	}
}

// Flush is a no-op in this design (see IterateObjects) but is kept as an
// explicit call so traversal call sites read the same way the spec
// describes them: flush, then iterate.
func (s *Space) Flush() {}

// Clear empties the space, discarding its object list. The scavenger
// uses it on the reserve semi-space before copying and again after the
// swap, when the previously active semi-space has become the reserve.
func (s *Space) Clear() {
	s.objects = nil
	s.used = 0
}

// Adopt replaces the space's object list and used-word count wholesale,
// e.g. with the set of objects a scavenge or compaction just produced.
func (s *Space) Adopt(objects []HeapObj, used int) {
	s.objects = objects
	s.used = used
}

// ClearMarkBits clears the mark bit on every object in the space. Old
// space calls this at the end of every old-space cycle, so the next
// cycle's mark phase starts from clear bits; new
// space objects never carry a meaningful mark bit, since new-space
// liveness is determined by reachability during the copy itself, not by
// a separate mark phase.
func (s *Space) ClearMarkBits() {
	for _, o := range s.objects {
		o.headerPtr().SetMarked(false)
	}
}

// ---------------------------------------------------------------------------
// OldSpace (Component B, old-space half)
// ---------------------------------------------------------------------------
//
// OldSpace wraps a Space with the bookkeeping that only applies on the
// promoted side of the heap: a remembered set of old objects that may
// hold pointers into new-space (the write barrier's target, §4.C), a
// "compacting" flag recording which of the two alternating GC
// strategies (§4.F) produced the current layout, and the pointlessness
// heuristic's running state.
type OldSpace struct {
	Space

	remembered map[HeapObj]struct{}
	compacting bool
	hardLimitHit bool
}

func NewOldSpace(limit int) *OldSpace {
	return &OldSpace{Space: Space{limit: limit}, remembered: make(map[HeapObj]struct{})}
}

// RecordOldToNewStore is the write barrier's old-space side effect: it
// is called whenever a store installs a new-space pointer into an
// object that already lives in old-space, so the scavenger knows to
// treat that object as a source of new-space roots.
func (os *OldSpace) RecordOldToNewStore(holder HeapObj) {
	os.remembered[holder] = struct{}{}
}

// RememberedSet returns every old-space object currently recorded as
// possibly holding a new-space pointer.
func (os *OldSpace) RememberedSet() []HeapObj {
	out := make([]HeapObj, 0, len(os.remembered))
	for o := range os.remembered {
		out = append(out, o)
	}
	return out
}

// ClearRememberedSet empties the remembered set. Called once a scavenge
// has finished re-scanning every remembered holder, since any
// old-to-new pointer that still exists after the scavenge was either
// just re-recorded by a fresh store or points at an object that was
// promoted and no longer needs remembering.
func (os *OldSpace) ClearRememberedSet() {
	os.remembered = make(map[HeapObj]struct{})
}

// NeedsGarbageCollection reports whether old-space is full enough that
// the next promotion attempt should trigger collect_old_space first.
func (os *OldSpace) NeedsGarbageCollection() bool {
	return os.used*2 >= os.limit
}

// SetCompacting records which strategy (§4.F: alternating
// sweep-after-compacting vs compact-after-sweeping) produced the
// current layout.
func (os *OldSpace) SetCompacting(v bool) { os.compacting = v }
func (os *OldSpace) Compacting() bool     { return os.compacting }

// EvaluatePointlessness reports whether the most recent old-space cycle
// (sweep or compact) freed less than threshold of the usedBefore words
// old-space held before it (§9 Open Question, resolved in DESIGN.md by
// making threshold a Config field rather than a hardcoded constant).
// CollectOldSpace uses the result only to decide whether to clear the
// hard-limit flag; it does not change which strategy the next cycle
// runs.
func (os *OldSpace) EvaluatePointlessness(usedBefore int, threshold float64) bool {
	if usedBefore == 0 {
		return false
	}
	freed := usedBefore - os.used
	return float64(freed)/float64(usedBefore) < threshold
}

// ClearHardLimitHit resets the flag set when an allocation request
// could not be satisfied even after a full collection; cleared once the
// condition causing it is known to have been handled (e.g. the program
// terminated the offending process).
func (os *OldSpace) ClearHardLimitHit() { os.hardLimitHit = false }
func (os *OldSpace) SetHardLimitHit()   { os.hardLimitHit = true }
func (os *OldSpace) HardLimitHit() bool { return os.hardLimitHit }
