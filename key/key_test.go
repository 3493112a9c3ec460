package key

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeObjectOrderIndependent(t *testing.T) {
	a := Canonicalize(map[string]any{"a": 1, "b": 2})
	b := Canonicalize(map[string]any{"b": 2, "a": 1})
	assert.Equal(t, a, b)
	assert.Equal(t, `[{"a":1,"b":2}]`, a)
}

func TestCanonicalizeArrayOrderDependent(t *testing.T) {
	assert.NotEqual(t, Canonicalize([]int{1, 2}), Canonicalize([]int{2, 1}))
	assert.Equal(t, "[1,2]", Canonicalize([]int{1, 2}))
}

func TestCanonicalizeDeepEqual(t *testing.T) {
	type filter struct {
		Page   int    `json:"page"`
		Search string `json:"search,omitempty"`
		hidden string
	}
	a := []any{"products", filter{Page: 2, hidden: "x"}}
	b := []any{"products", map[string]any{"page": 2}}
	assert.Equal(t, Canonicalize(a), Canonicalize(b))
	assert.Equal(t, Canonicalize([]any{"p", &filter{Page: 1}}), Canonicalize([]any{"p", filter{Page: 1}}))
}

func TestCanonicalizeScalars(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "products", `["products"]`},
		{"int", 7, `[7]`},
		{"float equals int", 7.0, `[7]`},
		{"bool", true, `[true]`},
		{"nil segment", []any{"a", nil}, `["a",null]`},
		{"nan", math.NaN(), `[#NaN]`},
		{"inf", math.Inf(1), `[#Infinity]`},
		{"neg inf", math.Inf(-1), `[#-Infinity]`},
		{"undefined segment", []any{"a", Undefined}, `["a",#undefined]`},
		{"nested", []any{"a", []any{1, map[string]any{"z": []int{3}, "y": "q"}}}, `["a",[1,{"y":"q","z":[3]}]]`},
		{"date", time.Date(2024, 3, 9, 10, 11, 12, 5e6, time.UTC), `["2024-03-09T10:11:12.005Z"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Canonicalize(tt.input))
		})
	}
}

func TestNumbersEncodeLikeJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected string
	}{
		{"small integral", 12345, "[12345]"},
		{"large integral", 1234567, "[1234567]"},
		{"max exact", 1 << 53, "[9007199254740992]"},
		{"negative integral", -2500000, "[-2500000]"},
		{"fraction", 1234567.5, "[1234567.5]"},
		{"tiny", 0.000001, "[0.000001]"},
		{"below tiny", 1e-7, "[1e-7]"},
		{"huge", 1e21, "[1e+21]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Canonicalize(tt.input))
		})
	}
}

func TestIntAndFloatKeysMatch(t *testing.T) {
	for _, n := range []int{0, 7, 12345, 1234567, 987654321, -42} {
		assert.Equal(t, Canonicalize([]any{"products", "detail", n}), Canonicalize([]any{"products", "detail", float64(n)}))
	}
	var decoded []any
	assert.NoError(t, json.Unmarshal([]byte(`["products","detail",1234567]`), &decoded))
	assert.True(t, New(decoded).Equal(New([]any{"products", "detail", 1234567})))
	assert.True(t, MatchesPrefix(decoded, []any{"products", "detail", int64(1234567)}, true))
}

func TestSentinelsDoNotCollideWithStrings(t *testing.T) {
	assert.NotEqual(t, Canonicalize(math.NaN()), Canonicalize("NaN"))
	assert.NotEqual(t, Canonicalize([]any{Undefined}), Canonicalize("undefined"))
	assert.NotEqual(t, Canonicalize(nil), Canonicalize([]any{nil}))
}

func TestUndefinedKeyCollapsesToDefault(t *testing.T) {
	assert.Equal(t, Default.String(), Canonicalize(nil))
	assert.Equal(t, Default.String(), Canonicalize(Undefined))
	assert.Equal(t, Default.String(), Key{}.String())
	assert.Equal(t, 1, Default.Len())
}

func TestFunctionsEncodeByName(t *testing.T) {
	a := Canonicalize([]any{"f", TestFunctionsEncodeByName})
	b := Canonicalize([]any{"f", TestFunctionsEncodeByName})
	assert.Equal(t, a, b)
	assert.Contains(t, a, "TestFunctionsEncodeByName")
}

func TestTimeZoneIndependent(t *testing.T) {
	loc := time.FixedZone("x", 3600)
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, Canonicalize(ts), Canonicalize(ts.In(loc)))
}

func TestMatchesPrefix(t *testing.T) {
	tests := []struct {
		name     string
		full     any
		partial  any
		exact    bool
		expected bool
	}{
		{"prefix", []any{"products", map[string]any{"page": 1}}, []any{"products"}, false, true},
		{"equal", []any{"products", 1}, []any{"products", 1}, false, true},
		{"exact equal", []any{"products", 1}, []any{"products", 1}, true, true},
		{"exact prefix", []any{"products", 1}, []any{"products"}, true, false},
		{"longer partial", []any{"products"}, []any{"products", 1}, false, false},
		{"mismatch", []any{"orders", 1}, []any{"products"}, false, false},
		{"scalar wrapped", []any{"products", 1}, "products", false, true},
		{"object order", []any{"p", map[string]any{"a": 1, "b": 2}}, []any{"p", map[string]any{"b": 2, "a": 1}}, true, true},
		{"undefined partial", []any{"p"}, nil, false, false},
		{"undefined both", nil, nil, true, true},
		{"empty partial", []any{"p", 1}, []any{}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MatchesPrefix(tt.full, tt.partial, tt.exact))
		})
	}
}

func TestHashStable(t *testing.T) {
	a := New([]any{"user", "profile", 7})
	b := New([]any{"user", "profile", 7})
	assert.Equal(t, a.Hash(), b.Hash())
	assert.True(t, a.Equal(b))
	assert.Equal(t, a, New(a))
}

func TestValueKinds(t *testing.T) {
	assert.Equal(t, KindMapping, Of(map[string]int{"a": 1}).Kind())
	assert.Equal(t, KindSequence, Of([]string{"a"}).Kind())
	assert.Equal(t, KindNull, Of((*int)(nil)).Kind())
	assert.Equal(t, KindNumber, Of(uint8(3)).Kind())
	v, ok := Of(map[string]int{"a": 1}).Prop("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v.String())
	assert.Len(t, Of([]int{1, 2}).Items(), 2)
	assert.Equal(t, "sequence", KindSequence.String())
}
