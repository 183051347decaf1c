package workflow

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/agentgraph/types"
)

type tagState struct {
	Tagged  string         `state:"custom"`
	JSON    int64          `json:"json_name,omitempty"`
	Plain   float64
	Skipped string         `json:"-"`
	Meta    map[string]int `json:"meta"`
	private int
}

func TestNewSchema_Keys(t *testing.T) {
	s := NewSchema[tagState]()
	require.NoError(t, s.Err())
	assert.Equal(t, []string{"custom", "json_name", "Plain", "meta"}, s.Keys())
}

func TestNewSchema_DefinitionErrors(t *testing.T) {
	type dup struct {
		A string `json:"x"`
		B string `state:"x"`
	}
	type empty struct{ hidden int }

	tests := []struct {
		name string
		err  error
	}{
		{"non-struct", NewSchema[string]().Err()},
		{"duplicate key", NewSchema[dup]().Err()},
		{"no fields", NewSchema[empty]().Err()},
		{"unknown reducer key", NewSchema[tagState](WithReducer("nope", Reduce(SumReducer[int]()))).Err()},
		{"nil reducer", NewSchema[tagState](WithReducer("meta", nil)).Err()},
		{"input with unknown key", NewSchema[tagState](WithInput[struct{ Other string }]()).Err()},
		{"input with wrong type", NewSchema[tagState](WithInput[struct {
			Custom int `state:"custom"`
		}]()).Err()},
		{"output not a struct", NewSchema[tagState](WithOutput[int]()).Err()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.Equal(t, types.ErrStateSchema, types.GetErrorCode(tt.err))
		})
	}
}

func TestSchema_Apply(t *testing.T) {
	s := NewSchema[tagState](WithReducer("meta", Reduce(MergeMapReducer[string, int]())))
	require.NoError(t, s.Err())

	base := tagState{Tagged: "a", JSON: 1, Plain: 1.5, Meta: map[string]int{"k": 1}}

	next, err := s.Apply(base, Update{"json_name": 42, "meta": map[string]int{"j": 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(42), next.JSON, "int converts to int64")
	assert.Equal(t, "a", next.Tagged)
	assert.Equal(t, map[string]int{"k": 1, "j": 2}, next.Meta)
	assert.Equal(t, map[string]int{"k": 1}, base.Meta, "input state is not modified")

	next, err = s.Apply(base, Update{"custom": nil})
	require.NoError(t, err)
	assert.Empty(t, next.Tagged)

	_, err = s.Apply(base, Update{"custom": 5})
	assert.Equal(t, types.ErrStateContract, types.GetErrorCode(err), "int does not convert to string")

	_, err = s.Apply(base, Update{"private": 1})
	assert.Equal(t, types.ErrStateContract, types.GetErrorCode(err))

	same, err := s.Apply(base, nil)
	require.NoError(t, err)
	assert.Equal(t, base, same)
}

func TestSchema_ApplyNamedTypes(t *testing.T) {
	type label string
	type st struct {
		Label label `json:"label"`
	}
	s := NewSchema[st]()

	next, err := s.Apply(st{}, Update{"label": "plain string"})
	require.NoError(t, err)
	assert.Equal(t, label("plain string"), next.Label)
}

func TestSchema_ApplyNumericConversions(t *testing.T) {
	type level int8
	type numState struct {
		N   int     `json:"n"`
		U   uint    `json:"u"`
		I8  int8    `json:"i8"`
		F32 float32 `json:"f32"`
		F64 float64 `json:"f64"`
		Lvl level   `json:"lvl"`
	}
	s := NewSchema[numState]()
	require.NoError(t, s.Err())

	tests := []struct {
		name    string
		key     string
		value   any
		want    numState
		wantErr bool
	}{
		{name: "integral float to int", key: "n", value: 3.0, want: numState{N: 3}},
		{name: "fractional float to int", key: "n", value: 3.7, wantErr: true},
		{name: "NaN to int", key: "n", value: math.NaN(), wantErr: true},
		{name: "huge float to int", key: "n", value: 1e30, wantErr: true},
		{name: "non-negative int to uint", key: "u", value: 7, want: numState{U: 7}},
		{name: "negative int to uint", key: "u", value: -1, wantErr: true},
		{name: "negative float to uint", key: "u", value: -2.0, wantErr: true},
		{name: "int fits int8", key: "i8", value: 127, want: numState{I8: 127}},
		{name: "int overflows int8", key: "i8", value: 300, wantErr: true},
		{name: "uint beyond int64", key: "n", value: uint64(math.MaxUint64), wantErr: true},
		{name: "int to float", key: "f64", value: 42, want: numState{F64: 42}},
		{name: "int loses precision in float", key: "f64", value: int64(1<<53 + 1), wantErr: true},
		{name: "float64 narrows to float32", key: "f32", value: 0.5, want: numState{F32: 0.5}},
		{name: "float64 overflows float32", key: "f32", value: 1e300, wantErr: true},
		{name: "named numeric type", key: "lvl", value: 5, want: numState{Lvl: 5}},
		{name: "named numeric overflow", key: "lvl", value: 1000, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Apply(numState{}, Update{tt.key: tt.value})
			if tt.wantErr {
				assert.Equal(t, types.ErrStateContract, types.GetErrorCode(err))
				assert.Equal(t, numState{}, got, "failed update leaves state untouched")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchema_ReducerError(t *testing.T) {
	failing := func(current, update any) (any, error) { return "wrong type", nil }
	s := NewSchema[tagState](WithReducer("json_name", failing))

	_, err := s.Apply(tagState{}, Update{"json_name": 1})
	assert.Equal(t, types.ErrStateContract, types.GetErrorCode(err))
}

func TestSchema_FromInput(t *testing.T) {
	s := NewSchema[tagState]()

	st, err := s.FromInput(tagState{Tagged: "v"})
	require.NoError(t, err)
	assert.Equal(t, "v", st.Tagged)

	st, err = s.FromInput(Update{"custom": "u"})
	require.NoError(t, err)
	assert.Equal(t, "u", st.Tagged)

	_, err = s.FromInput((*tagState)(nil))
	assert.Equal(t, types.ErrStateContract, types.GetErrorCode(err))

	_, err = s.FromInput(nil)
	assert.Equal(t, types.ErrStateContract, types.GetErrorCode(err))
}

func TestSchema_ToOutputWithoutProjection(t *testing.T) {
	s := NewSchema[tagState]()
	st := tagState{Tagged: "x"}
	assert.Equal(t, st, s.ToOutput(st))
}

// 部分合并：只有出现在 Update 中的键被改写
func TestProperty_PartialMerge(t *testing.T) {
	s := NewSchema[testState]()
	keys := s.Keys()

	rapid.Check(t, func(t *rapid.T) {
		base := testState{
			Input:  rapid.String().Draw(t, "input"),
			Count:  rapid.Int().Draw(t, "count"),
			Result: rapid.String().Draw(t, "result"),
		}
		upd := Update{}
		for _, k := range keys {
			if !rapid.Bool().Draw(t, "set_"+k) {
				continue
			}
			switch k {
			case "input":
				upd[k] = rapid.String().Draw(t, "new_input")
			case "count":
				upd[k] = rapid.Int().Draw(t, "new_count")
			case "result":
				upd[k] = rapid.String().Draw(t, "new_result")
			case "visited":
				upd[k] = rapid.SliceOf(rapid.String()).Draw(t, "new_visited")
			}
		}

		next, err := s.Apply(base, upd)
		if err != nil {
			t.Fatalf("apply: %v", err)
		}

		check := func(key string, got, old any) {
			if v, ok := upd[key]; ok {
				assert.Equal(t, v, got)
			} else {
				assert.Equal(t, old, got)
			}
		}
		check("input", next.Input, base.Input)
		check("count", next.Count, base.Count)
		check("result", next.Result, base.Result)
		check("visited", next.Visited, base.Visited)
	})
}
