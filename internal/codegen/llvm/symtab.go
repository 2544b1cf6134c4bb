package llvm

import "github.com/razorforge-lang/irgen/internal/ast"

// frame is one scope's bindings: a name's IR type, its source type (for
// generic/method dispatch), and whether it's a function parameter (bound
// directly, not behind an alloca).
type frame struct {
	irType     map[string]string
	sourceType map[string]string
	parameters map[string]bool
	alias      map[string]string // name -> the operand it is a compile-time alias for
}

func newFrame() *frame {
	return &frame{
		irType:     make(map[string]string),
		sourceType: make(map[string]string),
		parameters: make(map[string]bool),
		alias:      make(map[string]string),
	}
}

func (f *frame) clone() *frame {
	c := newFrame()
	for k, v := range f.irType {
		c.irType[k] = v
	}
	for k, v := range f.sourceType {
		c.sourceType[k] = v
	}
	for k, v := range f.parameters {
		c.parameters[k] = v
	}
	for k, v := range f.alias {
		c.alias[k] = v
	}
	return c
}

// instantiationKey identifies one monomorphization of a generic template.
type instantiationKey struct {
	base     string
	typeArgs string // type args joined, already mangled
}

// SymbolTable holds the scope stack plus the module-wide tables that
// outlive any single scope: record field layouts and generic templates.
type SymbolTable struct {
	frames []*frame

	// RecordFields maps a record/entity name to its ordered field list.
	RecordFields map[string][]FieldInfo

	GenericRecords   map[string]*ast.RecordDecl
	GenericEntities  map[string]*ast.EntityDecl
	GenericFunctions map[string]*ast.FunctionDecl

	instantiations map[instantiationKey]string
}

// FieldInfo is one field of a record or entity, by declared source type.
type FieldInfo struct {
	Name       string
	SourceType string
}

// NewSymbolTable builds a table with a single root frame.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		frames:           []*frame{newFrame()},
		RecordFields:     make(map[string][]FieldInfo),
		GenericRecords:   make(map[string]*ast.RecordDecl),
		GenericEntities:  make(map[string]*ast.EntityDecl),
		GenericFunctions: make(map[string]*ast.FunctionDecl),
		instantiations:   make(map[instantiationKey]string),
	}
}

// Push opens a new, empty scope on function or block entry.
func (s *SymbolTable) Push() {
	s.frames = append(s.frames, newFrame())
}

// Pop closes the innermost scope on function or block exit.
func (s *SymbolTable) Pop() {
	s.frames = s.frames[:len(s.frames)-1]
}

func (s *SymbolTable) top() *frame {
	return s.frames[len(s.frames)-1]
}

// Bind records a name's IR type and source type in the innermost scope.
func (s *SymbolTable) Bind(name, irType, sourceType string) {
	f := s.top()
	f.irType[name] = irType
	f.sourceType[name] = sourceType
}

// BindParameter is Bind plus marking the name as a function parameter
// (bound directly by value, not via an alloca slot).
func (s *SymbolTable) BindParameter(name, irType, sourceType string) {
	s.Bind(name, irType, sourceType)
	s.top().parameters[name] = true
}

// BindAlias records that name is a compile-time alias for an existing
// operand (the realization of viewing/hijacking: no alloca, no copy, the
// handle just names the same SSA value as its source for the scope's
// duration).
func (s *SymbolTable) BindAlias(name, operand, irType, sourceType string) {
	s.Bind(name, irType, sourceType)
	s.top().alias[name] = operand
	s.top().parameters[name] = true
}

// LookupAlias returns the operand a name was bound to via BindAlias, if any.
func (s *SymbolTable) LookupAlias(name string) (operand string, ok bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if op, found := s.frames[i].alias[name]; found {
			return op, true
		}
		if _, found := s.frames[i].irType[name]; found {
			return "", false
		}
	}
	return "", false
}

// Lookup searches from the innermost scope outward for a binding's IR and
// source type. ok is false if the name is unbound in any visible scope.
func (s *SymbolTable) Lookup(name string) (irType, sourceType string, ok bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		if t, found := f.irType[name]; found {
			return t, f.sourceType[name], true
		}
	}
	return "", "", false
}

// IsParameter reports whether name is bound as a function parameter in any
// visible scope (and so is a direct SSA value, not an alloca slot).
func (s *SymbolTable) IsParameter(name string) bool {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].parameters[name] {
			return true
		}
	}
	return false
}

// scopeSnapshot is a shallow copy of the entire frame stack, used to save
// and restore scope around nested emission contexts (lambda bodies) without
// touching the pending queue or the module-wide temp counter, which stay
// globally monotonic.
type scopeSnapshot struct {
	frames []*frame
}

// Snapshot captures the current frame stack by value (each frame shallow
// copied) so it can be restored later even if the live stack is mutated.
func (s *SymbolTable) Snapshot() scopeSnapshot {
	frames := make([]*frame, len(s.frames))
	for i, f := range s.frames {
		frames[i] = f.clone()
	}
	return scopeSnapshot{frames: frames}
}

// Restore replaces the live frame stack with a previously captured
// snapshot.
func (s *SymbolTable) Restore(snap scopeSnapshot) {
	s.frames = snap.frames
}

// RegisterRecordFields records a record or entity's field layout, in
// declaration order, for member-access and constructor lowering.
func (s *SymbolTable) RegisterRecordFields(name string, fields []FieldInfo) {
	s.RecordFields[name] = fields
}

// FieldIndex finds the declared index and source type of a field on a
// record/entity type. ok is false if the record or field is unknown.
func (s *SymbolTable) FieldIndex(recordName, fieldName string) (index int, sourceType string, ok bool) {
	fields, found := s.RecordFields[recordName]
	if !found {
		return 0, "", false
	}
	for i, f := range fields {
		if f.Name == fieldName {
			return i, f.SourceType, true
		}
	}
	return 0, "", false
}

// Instantiation looks up a cached monomorphization's mangled name.
func (s *SymbolTable) Instantiation(base string, mangledArgs string) (string, bool) {
	name, ok := s.instantiations[instantiationKey{base, mangledArgs}]
	return name, ok
}

// CacheInstantiation memoizes a monomorphization's mangled name for the
// module's lifetime.
func (s *SymbolTable) CacheInstantiation(base, mangledArgs, mangledName string) {
	s.instantiations[instantiationKey{base, mangledArgs}] = mangledName
}
