// Package streamtype implements the stream-type descriptor and match
// predicate that bind xform stages together into a chain.
package streamtype

import "github.com/machinefabric/xformd/value"

// Key is a member of the closed set of stream-type keys. Unlike the
// original's open string-keyed property bag, this is a fixed enumeration:
// every stage deals in the same five keys, and a typo in a key name is a
// compile error rather than a silently-ignored no-op match.
type Key int

const (
	MIMETYPE Key = iota
	URL
	FMT_FORMAT
	FMT_SAMPLERATE
	FMT_CHANNELS
)

var keyNames = map[Key]string{
	MIMETYPE:       "MIMETYPE",
	URL:            "URL",
	FMT_FORMAT:     "FMT_FORMAT",
	FMT_SAMPLERATE: "FMT_SAMPLERATE",
	FMT_CHANNELS:   "FMT_CHANNELS",
}

func (k Key) String() string {
	if n, ok := keyNames[k]; ok {
		return n
	}
	return "UNKNOWN"
}

// StreamType is an immutable mapping from the closed key set to typed
// values. It is constructed once via New/Str/Int and never mutated
// afterward; Match is the only operation a caller needs beyond the
// accessors.
type StreamType struct {
	values map[Key]value.Value
}

// Pair is one (key, value) entry fed to New. Use Str/Int to build one; the
// Go slice already carries its own length, so there is no terminator
// sentinel the way the C original uses XMMS_STREAM_TYPE_END to close a
// variadic arg list.
type Pair struct {
	key Key
	val value.Value
}

// Str builds a string-valued pair.
func Str(key Key, v string) Pair { return Pair{key: key, val: value.String(v)} }

// Int builds an integer-valued pair.
func Int(key Key, v int32) Pair { return Pair{key: key, val: value.Int32(v)} }

// New builds a stream-type from a sequence of pairs. Later pairs for the
// same key overwrite earlier ones.
func New(pairs ...Pair) *StreamType {
	st := &StreamType{values: make(map[Key]value.Value, len(pairs))}
	for _, p := range pairs {
		st.values[p.key] = p.val
	}
	return st
}

// GetStr returns the string stored under key, if any.
func (s *StreamType) GetStr(key Key) (string, bool) {
	v, ok := s.values[key]
	if !ok {
		return "", false
	}
	return v.AsString()
}

// GetInt returns the integer stored under key, or -1 if the key is unset
// or holds a non-integer value.
func (s *StreamType) GetInt(key Key) int32 {
	v, ok := s.values[key]
	if !ok {
		return -1
	}
	i, ok := v.AsInt32()
	if !ok {
		return -1
	}
	return i
}

// Has reports whether key is set.
func (s *StreamType) Has(key Key) bool {
	_, ok := s.values[key]
	return ok
}

// Match reports whether pattern matches concrete: for every key set in
// pattern, concrete must carry the same key with an equal value. Keys
// unset in pattern impose no constraint (wildcard); a key set in pattern
// but absent from concrete is a rejection, not a wildcard.
func Match(pattern, concrete *StreamType) bool {
	for k, pv := range pattern.values {
		cv, ok := concrete.values[k]
		if !ok {
			return false
		}
		if !value.Equal(pv, cv) {
			return false
		}
	}
	return true
}

// MatchesAny reports whether concrete matches at least one of goals. The
// chain builder uses this to decide when the tail has reached a goal
// format.
func MatchesAny(concrete *StreamType, goals []*StreamType) bool {
	for _, g := range goals {
		if Match(g, concrete) {
			return true
		}
	}
	return false
}
