package key

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindNaN
	KindInf
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindNaN:
		return "nan"
	case KindInf:
		return "inf"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

const (
	undefinedToken = "#undefined"
	nanToken       = "#NaN"
	posInfToken    = "#Infinity"
	negInfToken    = "#-Infinity"
)

// isoMillis matches the ISO-8601 form browsers emit for dates.
const isoMillis = "2006-01-02T15:04:05.000Z"

type undefined struct{}

// Undefined is a key segment with no value. A top level Undefined key
// resolves to the default key.
var Undefined = undefined{}

// Value is a query key segment reduced to a tagged variant: a scalar, an
// ordered sequence or a mapping with string keys.
type Value struct {
	kind Kind
	// text is the canonical scalar text: number literal, string, or "+"/"-" for Inf
	text  string
	flag  bool
	items []Value
	props map[string]Value
}

// Kind returns the variant of the value.
func (v Value) Kind() Kind { return v.kind }

// Items returns the elements of a sequence value.
func (v Value) Items() []Value { return v.items }

// Prop returns the member of a mapping value.
func (v Value) Prop(name string) (Value, bool) {
	p, ok := v.props[name]
	return p, ok
}

func String(s string) Value { return Value{kind: KindString, text: s} }

func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

func Number(f float64) Value {
	switch {
	case math.IsNaN(f):
		return Value{kind: KindNaN}
	case math.IsInf(f, 1):
		return Value{kind: KindInf, text: "+"}
	case math.IsInf(f, -1):
		return Value{kind: KindInf, text: "-"}
	}
	return Value{kind: KindNumber, text: formatNumber(f)}
}

// maxExactInt is the largest magnitude below which every integer has an
// exact float64 representation.
const maxExactInt = 1 << 53

// formatNumber renders f the way JSON numbers print in JavaScript, so that
// integral floats and Go integers share one encoding.
func formatNumber(f float64) string {
	abs := math.Abs(f)
	if f == math.Trunc(f) && abs <= maxExactInt {
		return strconv.FormatInt(int64(f), 10)
	}
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	out := strconv.FormatFloat(f, 'g', -1, 64)
	out = strings.Replace(out, "e-0", "e-", 1)
	return strings.Replace(out, "e+0", "e+", 1)
}

func Sequence(items ...Value) Value { return Value{kind: KindSequence, items: items} }

func Mapping(props map[string]Value) Value { return Value{kind: KindMapping, props: props} }

// Of converts an arbitrary Go value into its tagged variant.
func Of(v any) Value {
	switch t := v.(type) {
	case nil:
		return Value{kind: KindNull}
	case undefined:
		return Value{kind: KindUndefined}
	case Value:
		return t
	case Key:
		return Sequence(t.segments...)
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case int:
		return Value{kind: KindNumber, text: strconv.FormatInt(int64(t), 10)}
	case int64:
		return Value{kind: KindNumber, text: strconv.FormatInt(t, 10)}
	case int32:
		return Value{kind: KindNumber, text: strconv.FormatInt(int64(t), 10)}
	case uint:
		return Value{kind: KindNumber, text: strconv.FormatUint(uint64(t), 10)}
	case uint64:
		return Value{kind: KindNumber, text: strconv.FormatUint(t, 10)}
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case time.Time:
		return String(t.UTC().Format(isoMillis))
	case *time.Time:
		if t == nil {
			return Value{kind: KindNull}
		}
		return String(t.UTC().Format(isoMillis))
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return String(t.String())
	}
	return ofReflect(reflect.ValueOf(v))
}

func ofReflect(rv reflect.Value) Value {
	switch rv.Kind() {
	case reflect.Invalid:
		return Value{kind: KindNull}
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Value{kind: KindNull}
		}
		return Of(rv.Elem().Interface())
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Value{kind: KindNumber, text: strconv.FormatInt(rv.Int(), 10)}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Value{kind: KindNumber, text: strconv.FormatUint(rv.Uint(), 10)}
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float())
	case reflect.String:
		return String(rv.String())
	case reflect.Func:
		if rv.IsNil() {
			return Value{kind: KindNull}
		}
		return String(funcText(rv))
	case reflect.Slice:
		if rv.IsNil() {
			return Value{kind: KindNull}
		}
		fallthrough
	case reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = Of(rv.Index(i).Interface())
		}
		return Sequence(items...)
	case reflect.Map:
		if rv.IsNil() {
			return Value{kind: KindNull}
		}
		props := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			props[fmt.Sprint(iter.Key().Interface())] = Of(iter.Value().Interface())
		}
		return Mapping(props)
	case reflect.Struct:
		return structMapping(rv)
	default:
		return String(fmt.Sprint(rv.Interface()))
	}
}

// structMapping follows encoding/json naming: exported fields, json tag
// names, "-" skipped, omitempty honoured.
func structMapping(rv reflect.Value) Value {
	rt := rv.Type()
	props := make(map[string]Value, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		omitEmpty := false
		if tag, ok := field.Tag.Lookup("json"); ok {
			if tag == "-" {
				continue
			}
			parts := strings.Split(tag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitEmpty = true
				}
			}
		}
		fv := rv.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		props[name] = Of(fv.Interface())
	}
	return Mapping(props)
}

func funcText(rv reflect.Value) string {
	if fn := runtime.FuncForPC(rv.Pointer()); fn != nil {
		return "func " + fn.Name()
	}
	return "func"
}

// Equal reports whether two values have the same canonical encoding.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindUndefined, KindNull, KindNaN:
		return true
	case KindBool:
		return v.flag == o.flag
	case KindNumber, KindString, KindInf:
		return v.text == o.text
	case KindSequence:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.props) != len(o.props) {
			return false
		}
		for name, p := range v.props {
			q, ok := o.props[name]
			if !ok || !p.Equal(q) {
				return false
			}
		}
		return true
	}
	return false
}

// String returns the canonical encoding of the value.
func (v Value) String() string {
	var sb strings.Builder
	v.encode(&sb)
	return sb.String()
}

func (v Value) encode(sb *strings.Builder) {
	switch v.kind {
	case KindUndefined:
		sb.WriteString(undefinedToken)
	case KindNull:
		sb.WriteString("null")
	case KindNaN:
		sb.WriteString(nanToken)
	case KindInf:
		if v.text == "-" {
			sb.WriteString(negInfToken)
		} else {
			sb.WriteString(posInfToken)
		}
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.flag))
	case KindNumber:
		sb.WriteString(v.text)
	case KindString:
		writeQuoted(sb, v.text)
	case KindSequence:
		sb.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				sb.WriteByte(',')
			}
			item.encode(sb)
		}
		sb.WriteByte(']')
	case KindMapping:
		names := make([]string, 0, len(v.props))
		for name := range v.props {
			names = append(names, name)
		}
		sort.Strings(names)
		sb.WriteByte('{')
		for i, name := range names {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeQuoted(sb, name)
			sb.WriteByte(':')
			v.props[name].encode(sb)
		}
		sb.WriteByte('}')
	}
}

func writeQuoted(sb *strings.Builder, s string) {
	buf, err := json.Marshal(s)
	if err != nil {
		sb.WriteString(strconv.Quote(s))
		return
	}
	sb.Write(buf)
}
