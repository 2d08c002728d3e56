// Package value implements the tagged value union exchanged between xform
// stages, browse entries and IPC payloads.
package value

import "fmt"

// Kind identifies which variant a Value currently holds.
type Kind int

const (
	KindInt32 Kind = iota
	KindString
	KindBinary
	KindDict
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindDict:
		return "dict"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is a closed sum type: Int32 | String | Binary | Dict | List.
// Dict and List are used only for browse output and IPC result payloads.
type Value struct {
	kind Kind
	i32  int32
	str  string
	bin  []byte
	dict map[string]Value
	list []Value
}

func Int32(v int32) Value  { return Value{kind: KindInt32, i32: v} }
func String(v string) Value { return Value{kind: KindString, str: v} }

func Binary(v []byte) Value {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Value{kind: KindBinary, bin: cp}
}

func Dict(v map[string]Value) Value {
	cp := make(map[string]Value, len(v))
	for k, val := range v {
		cp[k] = val
	}
	return Value{kind: KindDict, dict: cp}
}

func List(v []Value) Value {
	cp := make([]Value, len(v))
	copy(cp, v)
	return Value{kind: KindList, list: cp}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsInt32() (int32, bool) {
	if v.kind != KindInt32 {
		return 0, false
	}
	return v.i32, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) AsBinary() ([]byte, bool) {
	if v.kind != KindBinary {
		return nil, false
	}
	cp := make([]byte, len(v.bin))
	copy(cp, v.bin)
	return cp, true
}

func (v Value) AsDict() (map[string]Value, bool) {
	if v.kind != KindDict {
		return nil, false
	}
	return v.dict, true
}

func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// Equal reports whether two values carry the same kind and content. Dicts
// and lists compare deeply; it is used by metadata_set_{str,int} to dedupe
// unchanged assignments.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindInt32:
		return a.i32 == b.i32
	case KindString:
		return a.str == b.str
	case KindBinary:
		return string(a.bin) == string(b.bin)
	case KindDict:
		if len(a.dict) != len(b.dict) {
			return false
		}
		for k, av := range a.dict {
			bv, ok := b.dict[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindInt32:
		return fmt.Sprintf("%d", v.i32)
	case KindString:
		return v.str
	case KindBinary:
		return fmt.Sprintf("<%d bytes>", len(v.bin))
	case KindDict:
		return fmt.Sprintf("%v", v.dict)
	case KindList:
		return fmt.Sprintf("%v", v.list)
	default:
		return "<invalid value>"
	}
}
