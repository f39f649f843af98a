// Package reflection turns constructor functions and their In/Out param and
// result objects into plain dependency descriptions the resolution engine can
// compile call sites from. It is the only package in wireup that looks at
// struct tags.
package reflection

import (
	"fmt"
	"reflect"
	"sync"
)

// In, embedded anonymously in a constructor's single struct parameter,
// marks that struct as a parameter object: every other exported field of the
// struct becomes a dependency instead of the struct itself.
type In struct{}

// Out, embedded anonymously in a constructor's first return value, marks
// that struct as a result object: every other exported field of the struct
// is registered as its own service instead of the struct as a whole.
type Out struct{}

var (
	inType  = reflect.TypeOf((*In)(nil)).Elem()
	outType = reflect.TypeOf((*Out)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// KeyMode describes how a dependency field resolves a keyed service, mapped
// from the fromkeyed struct tag.
type KeyMode int

const (
	// KeyModeDefault resolves the dependency with whatever key the caller
	// normally would (no fromkeyed tag present).
	KeyModeDefault KeyMode = iota
	// KeyModeInherit resolves the dependency keyed by the enclosing
	// service's own key (fromkeyed:"inherit").
	KeyModeInherit
	// KeyModeExplicit resolves the dependency keyed by a literal key given
	// in the tag (fromkeyed:"explicit=literal").
	KeyModeExplicit
	// KeyModeNull resolves the dependency unkeyed, even if the enclosing
	// service was resolved with a key (fromkeyed:"null").
	KeyModeNull
)

// Dependency describes one constructor parameter or In-struct field that the
// engine must resolve before the constructor can run.
type Dependency struct {
	Type      reflect.Type
	Key       any
	Group     string
	Optional  bool
	Index     int
	FieldName string

	// IsSlice and ElemType describe a Sequence[T]-shaped dependency: Type is
	// the slice type, ElemType its element type.
	IsSlice  bool
	ElemType reflect.Type

	// IsServiceKey marks a field tagged servicekey:"true": instead of being
	// resolved as a service, it is filled in with the current identifier's
	// own key at invocation time.
	IsServiceKey bool

	// KeyMode and ExplicitKey come from a fromkeyed tag on this field.
	KeyMode     KeyMode
	ExplicitKey any
}

// ResultField describes one value produced by a constructor: either an
// ordinary (possibly multi-value) return, or a field of an Out struct.
type ResultField struct {
	Type    reflect.Type
	Name    string
	Key     any
	Group   string
	Index   int
	IsError bool
}

// ConstructorInfo is the fully analyzed shape of a constructor: its
// dependencies, its produced results, and which In/Out conventions apply.
type ConstructorInfo struct {
	Type   reflect.Type
	Value  reflect.Value
	IsFunc bool

	IsParamObject  bool
	IsResultObject bool
	HasErrorReturn bool

	Dependencies []Dependency
	Results      []ResultField
}

// Analyzer analyzes constructors and caches the result per function
// pointer, since the same constructor is typically resolved many times
// across the lifetime of a provider.
type Analyzer struct {
	mu    sync.RWMutex
	cache map[uintptr]*ConstructorInfo
}

// NewAnalyzer creates an empty Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{cache: make(map[uintptr]*ConstructorInfo)}
}

// Analyze extracts dependency and result information from a constructor
// function. Passing a non-function value is an error; instance registrations
// never go through the analyzer.
func (a *Analyzer) Analyze(constructor any) (*ConstructorInfo, error) {
	val := reflect.ValueOf(constructor)
	if !val.IsValid() || val.Kind() != reflect.Func {
		return nil, fmt.Errorf("reflection: constructor must be a function, got %T", constructor)
	}
	if val.IsNil() {
		return nil, fmt.Errorf("reflection: constructor function is nil")
	}

	key := val.Pointer()

	a.mu.RLock()
	if cached, ok := a.cache[key]; ok {
		a.mu.RUnlock()
		return cached, nil
	}
	a.mu.RUnlock()

	info := &ConstructorInfo{Type: val.Type(), Value: val, IsFunc: true}

	if err := a.analyzeParameters(info); err != nil {
		return nil, fmt.Errorf("reflection: analyzing parameters: %w", err)
	}
	if err := a.analyzeResults(info); err != nil {
		return nil, fmt.Errorf("reflection: analyzing results: %w", err)
	}

	a.mu.Lock()
	a.cache[key] = info
	a.mu.Unlock()

	return info, nil
}

// Clear drops all cached analyses.
func (a *Analyzer) Clear() {
	a.mu.Lock()
	a.cache = make(map[uintptr]*ConstructorInfo)
	a.mu.Unlock()
}

func (a *Analyzer) analyzeParameters(info *ConstructorInfo) error {
	fnType := info.Type

	if fnType.NumIn() == 1 && hasEmbedded(fnType.In(0), inType) {
		info.IsParamObject = true
		return a.analyzeParamObject(info, fnType.In(0))
	}

	deps := make([]Dependency, fnType.NumIn())
	for i := 0; i < fnType.NumIn(); i++ {
		paramType := fnType.In(i)
		deps[i] = Dependency{
			Type:     paramType,
			Index:    i,
			IsSlice:  paramType.Kind() == reflect.Slice,
			ElemType: sliceElem(paramType),
		}
	}
	info.Dependencies = deps
	return nil
}

func (a *Analyzer) analyzeParamObject(info *ConstructorInfo, structType reflect.Type) error {
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return fmt.Errorf("In parameter must be a struct, got %s", structType.Kind())
	}

	deps := make([]Dependency, 0, structType.NumField())
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if !field.IsExported() {
			continue
		}
		if field.Anonymous && field.Type == inType {
			continue
		}

		tag := parseTag(field.Tag)
		if tag.ignore {
			continue
		}

		dep := Dependency{
			Type:         field.Type,
			FieldName:    field.Name,
			Index:        i,
			Optional:     tag.optional,
			Group:        tag.group,
			IsSlice:      field.Type.Kind() == reflect.Slice,
			ElemType:     sliceElem(field.Type),
			IsServiceKey: tag.isServiceKey,
			KeyMode:      tag.keyMode,
			ExplicitKey:  tag.explicitKey,
		}
		if tag.name != "" {
			dep.Key = tag.name
		}
		if dep.IsSlice && dep.Group != "" && dep.ElemType != nil {
			dep.Type = dep.ElemType
		}

		deps = append(deps, dep)
	}

	info.Dependencies = deps
	return nil
}

func (a *Analyzer) analyzeResults(info *ConstructorInfo) error {
	fnType := info.Type
	if fnType.NumOut() == 0 {
		return nil
	}

	if hasEmbedded(fnType.Out(0), outType) {
		info.IsResultObject = true
		if err := a.analyzeResultObject(info, fnType.Out(0)); err != nil {
			return err
		}
		if fnType.NumOut() == 2 && isError(fnType.Out(1)) {
			info.HasErrorReturn = true
		}
		return nil
	}

	results := make([]ResultField, 0, fnType.NumOut())
	for i := 0; i < fnType.NumOut(); i++ {
		retType := fnType.Out(i)
		isErr := isError(retType) && i == fnType.NumOut()-1
		if isErr {
			info.HasErrorReturn = true
		}
		results = append(results, ResultField{Type: retType, Index: i, IsError: isErr})
	}
	info.Results = results
	return nil
}

func (a *Analyzer) analyzeResultObject(info *ConstructorInfo, structType reflect.Type) error {
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return fmt.Errorf("Out result must be a struct, got %s", structType.Kind())
	}

	results := make([]ResultField, 0, structType.NumField())
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if !field.IsExported() {
			continue
		}
		if field.Anonymous && field.Type == outType {
			continue
		}

		tag := parseTag(field.Tag)
		if tag.ignore {
			continue
		}

		rf := ResultField{Type: field.Type, Name: field.Name, Index: i, Group: tag.group}
		if tag.name != "" {
			rf.Key = tag.name
		}
		results = append(results, rf)
	}

	info.Results = results
	return nil
}

// GetServiceType returns the primary type a constructor produces: the Out
// struct type for result objects, otherwise its first non-error return type.
func (info *ConstructorInfo) GetServiceType() (reflect.Type, error) {
	if info.IsResultObject {
		return info.Type.Out(0), nil
	}
	for _, r := range info.Results {
		if !r.IsError {
			return r.Type, nil
		}
	}
	return nil, fmt.Errorf("reflection: constructor has no non-error return value")
}

type parsedTag struct {
	optional     bool
	name         string
	group        string
	ignore       bool
	isServiceKey bool
	keyMode      KeyMode
	explicitKey  any
}

func parseTag(tag reflect.StructTag) parsedTag {
	var p parsedTag

	if v, ok := tag.Lookup("optional"); ok {
		p.optional = v == "true"
	}
	if v, ok := tag.Lookup("name"); ok {
		p.name = v
	}
	if v, ok := tag.Lookup("group"); ok {
		p.group = v
	}
	if v, ok := tag.Lookup("inject"); ok && v == "-" {
		p.ignore = true
	}
	if v, ok := tag.Lookup("servicekey"); ok {
		p.isServiceKey = v == "true"
	}
	if v, ok := tag.Lookup("fromkeyed"); ok {
		switch {
		case v == "inherit":
			p.keyMode = KeyModeInherit
		case v == "null":
			p.keyMode = KeyModeNull
		case len(v) > len("explicit=") && v[:len("explicit=")] == "explicit=":
			p.keyMode = KeyModeExplicit
			p.explicitKey = v[len("explicit="):]
		}
	}

	return p
}

func hasEmbedded(t, embedded reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Type == embedded {
			return true
		}
	}
	return false
}

func sliceElem(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Slice {
		return t.Elem()
	}
	return nil
}

func isError(t reflect.Type) bool {
	return t.Implements(errType)
}
