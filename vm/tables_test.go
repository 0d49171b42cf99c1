package vm

import (
	"testing"
	"unsafe"
)

// TestSelectorTableInternIsIdempotent checks that interning the same
// selector name twice returns the same ID, and that Lookup agrees.
func TestSelectorTableInternIsIdempotent(t *testing.T) {
	st := NewSelectorTable()
	id1 := st.Intern("at:put:")
	id2 := st.Intern("at:put:")
	if id1 != id2 {
		t.Errorf("Intern returned different IDs for the same name: %d, %d", id1, id2)
	}
	if got := st.Lookup("at:put:"); got != id1 {
		t.Errorf("Lookup = %d, want %d", got, id1)
	}
	if got := st.Lookup("never interned"); got != -1 {
		t.Errorf("Lookup of an unknown selector = %d, want -1", got)
	}
}

// TestSelectorTableNameRoundTrips checks that Name recovers the string
// an ID was interned from, and reports "" for an out-of-range ID.
func TestSelectorTableNameRoundTrips(t *testing.T) {
	st := NewSelectorTable()
	id := st.Intern("ifTrue:ifFalse:")
	if got := st.Name(id); got != "ifTrue:ifFalse:" {
		t.Errorf("Name(%d) = %q, want %q", id, got, "ifTrue:ifFalse:")
	}
	if got := st.Name(-1); got != "" {
		t.Errorf("Name(-1) = %q, want \"\"", got)
	}
	if got := st.Name(999); got != "" {
		t.Errorf("Name(999) = %q, want \"\"", got)
	}
}

// TestSelectorTableInternAllPreservesOrder checks that InternAll returns
// IDs in the same order as the names given, even with a repeat.
func TestSelectorTableInternAllPreservesOrder(t *testing.T) {
	st := NewSelectorTable()
	first := st.Intern("foo")
	ids := st.InternAll("bar", "foo", "baz")
	if ids[1] != first {
		t.Errorf("InternAll re-interned an existing name: got %d, want %d", ids[1], first)
	}
	if st.Len() != 3 {
		t.Errorf("Len() = %d, want 3", st.Len())
	}
	all := st.All()
	for _, name := range []string{"foo", "bar", "baz"} {
		found := false
		for _, n := range all {
			if n == name {
				found = true
			}
		}
		if !found {
			t.Errorf("All() = %v, missing %q", all, name)
		}
	}
}

// TestSymbolTableInternIsIdempotent mirrors the selector table's
// idempotence guarantee for symbols.
func TestSymbolTableInternIsIdempotent(t *testing.T) {
	st := NewSymbolTable()
	id1 := st.Intern("foo")
	id2 := st.Intern("foo")
	if id1 != id2 {
		t.Errorf("Intern returned different IDs for the same name: %d, %d", id1, id2)
	}
	if got, ok := st.Lookup("foo"); !ok || got != id1 {
		t.Errorf("Lookup(foo) = (%d, %v), want (%d, true)", got, ok, id1)
	}
}

// TestSymbolTableValueByIDBeforeAndAfterBind checks that a freshly
// interned symbol has no bound heap value until Bind is called.
func TestSymbolTableValueByIDBeforeAndAfterBind(t *testing.T) {
	st := NewSymbolTable()
	id := st.Intern("foo")

	if _, ok := st.ValueByID(id); ok {
		t.Fatal("freshly interned symbol already has a bound value")
	}

	p := newTestProgram()
	v := p.allocateOld(NewString(p.EmptyString.Obj().(*ByteArray).Class, "foo"))
	st.Bind(id, v)

	got, ok := st.ValueByID(id)
	if !ok || got != v {
		t.Errorf("ValueByID after Bind = (%v, %v), want (%v, true)", got, ok, v)
	}
}

// TestDispatchTableSetupIntrinsicsFollowsRelocatedTarget checks that
// ClearCodePointers/SetupDispatchTableIntrinsics correctly re-derive the
// cached entry point after a dispatch entry's target function is
// swapped out for a different Function object (standing in for a
// GC-relocated one), falling back to the target's own entry point when
// no intrinsic and no default method entry is registered.
func TestDispatchTableSetupIntrinsicsFollowsRelocatedTarget(t *testing.T) {
	p := newTestProgram()
	dt := NewDispatchTable()

	fnClass := p.classFor("CompiledMethod", p.ClassClass)
	fn := NewFunction(fnClass, 0, nil, []byte{byte(OpReturnTop)})
	fnVal := p.allocateOld(fn)
	idx := dt.Add(fnVal, 0)

	if dt.Entry(idx).Code != fn.EntryPointer() {
		t.Fatal("Add did not cache the initial entry point")
	}

	dt.ClearCodePointers()
	if dt.Entry(idx).Code != nil {
		t.Error("ClearCodePointers left a stale code pointer")
	}

	relocated := NewFunction(fnClass, 0, nil, []byte{byte(OpPushSelf), byte(OpReturnTop)})
	relocatedVal := ValueOf(relocated)
	dt.entries[idx].Target = relocatedVal

	dt.SetupDispatchTableIntrinsics(p.Cfg, nil, nil)
	if dt.Entry(idx).Code != relocated.EntryPointer() {
		t.Error("SetupDispatchTableIntrinsics did not follow the swapped-in target")
	}
}

// TestDispatchTableSetupIntrinsicsPrefersIntrinsicOverDefault checks
// that a registered intrinsic for an entry's selector wins over both
// the target's own entry point and an explicit default method entry.
func TestDispatchTableSetupIntrinsicsPrefersIntrinsicOverDefault(t *testing.T) {
	p := newTestProgram()
	dt := NewDispatchTable()

	fnClass := p.classFor("CompiledMethod", p.ClassClass)
	fn := NewFunction(fnClass, 0, nil, []byte{byte(OpReturnTop)})
	fnVal := p.allocateOld(fn)
	idx := dt.Add(fnVal, 7)
	dt.ClearCodePointers()

	var intrinsicCode, defaultCode int
	intrinsics := NewIntrinsicsTable()
	intrinsics.Register(7, unsafe.Pointer(&intrinsicCode))

	dt.SetupDispatchTableIntrinsics(p.Cfg, intrinsics, unsafe.Pointer(&defaultCode))
	if dt.Entry(idx).Code != unsafe.Pointer(&intrinsicCode) {
		t.Error("SetupDispatchTableIntrinsics did not prefer the registered intrinsic")
	}
}

// TestDispatchTableSetupIntrinsicsFallsBackToDefaultMethodEntry checks
// that an entry with no registered intrinsic falls back to the supplied
// default method entry rather than the target's own entry point.
func TestDispatchTableSetupIntrinsicsFallsBackToDefaultMethodEntry(t *testing.T) {
	p := newTestProgram()
	dt := NewDispatchTable()

	fnClass := p.classFor("CompiledMethod", p.ClassClass)
	fn := NewFunction(fnClass, 0, nil, []byte{byte(OpReturnTop)})
	fnVal := p.allocateOld(fn)
	idx := dt.Add(fnVal, 9)
	dt.ClearCodePointers()

	var defaultCode int
	dt.SetupDispatchTableIntrinsics(p.Cfg, NewIntrinsicsTable(), unsafe.Pointer(&defaultCode))
	if dt.Entry(idx).Code != unsafe.Pointer(&defaultCode) {
		t.Error("SetupDispatchTableIntrinsics did not fall back to the default method entry")
	}
}

// TestDispatchTableVisitTargetsRewritesEveryEntry checks that
// VisitTargets rewrites each entry's Target through the supplied
// visitor.
func TestDispatchTableVisitTargetsRewritesEveryEntry(t *testing.T) {
	p := newTestProgram()
	dt := NewDispatchTable()

	fnClass := p.classFor("CompiledMethod", p.ClassClass)
	fn := NewFunction(fnClass, 0, nil, []byte{byte(OpReturnTop)})
	fnVal := p.allocateOld(fn)
	dt.Add(fnVal, 0)

	replacement := ValueOf(NewFunction(fnClass, 0, nil, []byte{byte(OpReturnTop)}))
	dt.VisitTargets(VisitBlockFunc(func(v Value) Value {
		if v == fnVal {
			return replacement
		}
		return v
	}))

	if dt.Entry(0).Target != replacement {
		t.Errorf("VisitTargets left Target = %v, want %v", dt.Entry(0).Target, replacement)
	}
}
