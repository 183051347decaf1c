package workflow

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/BaSui01/agentgraph/types"
)

// Update is a partial state update returned by a plain node, keyed by state key.
// Keys absent from the map leave their field unchanged. A nil value resets the
// field to its zero value without consulting the field's reducer.
type Update map[string]any

// FieldReducer merges an update value into the current value of a state field.
type FieldReducer func(current, update any) (any, error)

type stateField struct {
	key     string
	index   []int
	typ     reflect.Type
	reducer FieldReducer
}

// projectedField maps a field of an input/output type onto a state key.
type projectedField struct {
	key   string
	index []int
}

type projection struct {
	typ    reflect.Type
	fields []projectedField
}

// Schema describes the state struct S threaded through a graph, plus optional
// input and output shapes. A Schema is immutable once built and may be shared
// by any number of workflows.
//
// State keys come from the `state` struct tag, then the `json` tag name, then
// the Go field name. Unexported fields and fields tagged `state:"-"` are not
// part of the state.
type Schema[S any] struct {
	typ    reflect.Type
	fields map[string]*stateField
	keys   []string
	input  *projection
	output *projection
	err    error
}

type schemaConfig struct {
	reducers map[string]FieldReducer
	input    reflect.Type
	output   reflect.Type
}

// SchemaOption configures a Schema.
type SchemaOption func(*schemaConfig)

// WithReducer attaches a reducer to a state key. Without one, updates replace
// the current value.
func WithReducer(key string, r FieldReducer) SchemaOption {
	return func(c *schemaConfig) {
		c.reducers[key] = r
	}
}

// WithInput sets the input schema: the struct type accepted by Workflow.Execute.
// Its fields must be a subset of the state keys.
func WithInput[I any]() SchemaOption {
	return func(c *schemaConfig) {
		c.input = reflect.TypeFor[I]()
	}
}

// WithOutput sets the output schema: the struct type Workflow.Execute returns.
// Its fields must be a subset of the state keys.
func WithOutput[O any]() SchemaOption {
	return func(c *schemaConfig) {
		c.output = reflect.TypeFor[O]()
	}
}

// NewSchema reflects S into a Schema. Definition errors are kept on the schema
// and reported by Err and by Compile.
func NewSchema[S any](opts ...SchemaOption) *Schema[S] {
	cfg := schemaConfig{reducers: make(map[string]FieldReducer)}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Schema[S]{
		typ:    reflect.TypeFor[S](),
		fields: make(map[string]*stateField),
	}
	if s.typ.Kind() != reflect.Struct {
		s.err = types.Errorf(types.ErrStateSchema, "state type %s is not a struct", s.typ)
		return s
	}

	if err := s.indexFields(); err != nil {
		s.err = err
		return s
	}

	for key, r := range cfg.reducers {
		f, ok := s.fields[key]
		if !ok {
			s.err = types.Errorf(types.ErrStateSchema, "reducer for unknown state key %q", key)
			return s
		}
		if r == nil {
			s.err = types.Errorf(types.ErrStateSchema, "reducer for state key %q is nil", key)
			return s
		}
		f.reducer = r
	}

	if cfg.input != nil {
		p, err := s.project(cfg.input, true)
		if err != nil {
			s.err = err
			return s
		}
		s.input = p
	}
	if cfg.output != nil {
		p, err := s.project(cfg.output, false)
		if err != nil {
			s.err = err
			return s
		}
		s.output = p
	}
	return s
}

// Err returns the first schema definition error, if any.
func (s *Schema[S]) Err() error { return s.err }

// Keys returns the state keys in declaration order.
func (s *Schema[S]) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Type returns the reflected state type.
func (s *Schema[S]) Type() reflect.Type { return s.typ }

func (s *Schema[S]) indexFields() error {
	for i := 0; i < s.typ.NumField(); i++ {
		sf := s.typ.Field(i)
		if !sf.IsExported() {
			continue
		}
		key, ok := stateKey(sf)
		if !ok {
			continue
		}
		if _, dup := s.fields[key]; dup {
			return types.Errorf(types.ErrStateSchema, "duplicate state key %q in %s", key, s.typ)
		}
		s.fields[key] = &stateField{key: key, index: sf.Index, typ: sf.Type}
		s.keys = append(s.keys, key)
	}
	if len(s.keys) == 0 {
		return types.Errorf(types.ErrStateSchema, "state type %s has no exported fields", s.typ)
	}
	return nil
}

func stateKey(sf reflect.StructField) (string, bool) {
	if tag, ok := sf.Tag.Lookup("state"); ok {
		if tag == "-" {
			return "", false
		}
		if tag != "" {
			return tag, true
		}
	}
	if tag, ok := sf.Tag.Lookup("json"); ok {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return "", false
		}
		if name != "" {
			return name, true
		}
	}
	return sf.Name, true
}

// project matches an input/output struct type against the state keys. Input
// fields must be assignable to state fields; state fields must be assignable
// to output fields.
func (s *Schema[S]) project(t reflect.Type, input bool) (*projection, error) {
	role := "output"
	if input {
		role = "input"
	}
	if t.Kind() != reflect.Struct {
		return nil, types.Errorf(types.ErrStateSchema, "%s type %s is not a struct", role, t)
	}

	p := &projection{typ: t}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		key, ok := stateKey(sf)
		if !ok {
			continue
		}
		f, ok := s.fields[key]
		if !ok {
			return nil, types.Errorf(types.ErrStateSchema, "%s field %s.%s maps to unknown state key %q", role, t, sf.Name, key)
		}
		from, to := f.typ, sf.Type
		if input {
			from, to = sf.Type, f.typ
		}
		if !from.AssignableTo(to) {
			return nil, types.Errorf(types.ErrStateSchema, "%s field %s.%s has type %s, state key %q has type %s", role, t, sf.Name, sf.Type, key, f.typ)
		}
		p.fields = append(p.fields, projectedField{key: key, index: sf.Index})
	}
	return p, nil
}

// Apply merges upd into state and returns the new state. The state argument is
// not modified. Keys are applied in sorted order so reducer side effects are
// deterministic.
func (s *Schema[S]) Apply(state S, upd Update) (S, error) {
	if len(upd) == 0 {
		return state, nil
	}

	keys := make([]string, 0, len(upd))
	for k := range upd {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	next := state
	v := reflect.ValueOf(&next).Elem()
	for _, key := range keys {
		f, ok := s.fields[key]
		if !ok {
			return state, types.Errorf(types.ErrStateContract, "unknown state key %q", key)
		}
		raw := upd[key]
		if raw == nil {
			v.FieldByIndex(f.index).Set(reflect.Zero(f.typ))
			continue
		}

		val, err := coerce(raw, f.typ)
		if err != nil {
			return state, types.Errorf(types.ErrStateContract, "state key %q: %v", key, err)
		}

		fv := v.FieldByIndex(f.index)
		if f.reducer != nil {
			merged, err := f.reducer(fv.Interface(), val.Interface())
			if err != nil {
				return state, types.Errorf(types.ErrStateContract, "reduce state key %q: %v", key, err)
			}
			if val, err = coerce(merged, f.typ); err != nil {
				return state, types.Errorf(types.ErrStateContract, "reduce state key %q: %v", key, err)
			}
		}
		fv.Set(val)
	}
	return next, nil
}

// FromInput builds the initial state from a caller-supplied value: S, *S, an
// Update (applied to the zero state), or a value of the input type.
func (s *Schema[S]) FromInput(in any) (S, error) {
	var zero S
	switch v := in.(type) {
	case S:
		return v, nil
	case *S:
		if v == nil {
			return zero, types.NewError(types.ErrStateContract, "nil state pointer")
		}
		return *v, nil
	case Update:
		return s.Apply(zero, v)
	case map[string]any:
		return s.Apply(zero, Update(v))
	}

	if s.input != nil && in != nil {
		rv := reflect.ValueOf(in)
		if rv.Kind() == reflect.Pointer && !rv.IsNil() {
			rv = rv.Elem()
		}
		if rv.Type() == s.input.typ {
			state := zero
			sv := reflect.ValueOf(&state).Elem()
			for _, pf := range s.input.fields {
				sv.FieldByIndex(s.fields[pf.key].index).Set(rv.FieldByIndex(pf.index))
			}
			return state, nil
		}
	}
	return zero, types.Errorf(types.ErrStateContract, "unsupported input type %T", in)
}

// ToOutput projects state onto the output type, or returns state itself when no
// output schema is configured.
func (s *Schema[S]) ToOutput(state S) any {
	if s.output == nil {
		return state
	}
	out := reflect.New(s.output.typ).Elem()
	sv := reflect.ValueOf(&state).Elem()
	for _, pf := range s.output.fields {
		out.FieldByIndex(pf.index).Set(sv.FieldByIndex(s.fields[pf.key].index))
	}
	return out.Interface()
}

func coerce(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(rv)
		return out, nil
	}
	if !rv.Type().ConvertibleTo(t) {
		return reflect.Value{}, fmt.Errorf("cannot use %s as %s", rv.Type(), t)
	}
	if isNumeric(rv.Kind()) && isNumeric(t.Kind()) {
		return convertNumber(rv, t)
	}
	// 同种类的具名类型之间可转换；int 转 string 之类的转换被拒绝
	if rv.Kind() == t.Kind() {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s as %s", rv.Type(), t)
}

// convertNumber 只接受不丢失信息的数值转换：不截断小数、不翻转符号、不溢出
func convertNumber(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	from, to := rv.Kind(), t.Kind()
	lossy := false
	switch {
	case isFloat(from) && isFloat(to):
		f := rv.Float()
		lossy = !math.IsInf(f, 0) && reflect.Zero(t).OverflowFloat(f)
	case isSigned(from) && isUnsigned(to):
		lossy = rv.Int() < 0
	case isUnsigned(from) && isSigned(to):
		lossy = rv.Uint() > math.MaxInt64
	case isFloat(from):
		f := rv.Float()
		lossy = math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || (isUnsigned(to) && f < 0)
	}
	out := rv.Convert(t)
	if !lossy && !(isFloat(from) && isFloat(to)) {
		// 往返比较捕获溢出与精度丢失
		lossy = out.Convert(rv.Type()).Interface() != rv.Interface()
	}
	if lossy {
		return reflect.Value{}, fmt.Errorf("%v does not fit %s without loss", rv.Interface(), t)
	}
	return out, nil
}

func isSigned(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUnsigned(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uint64
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
