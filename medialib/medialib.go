// Package medialib defines the media-library collaborator the metadata
// collector and browse driver write into. xformd ships only an in-memory
// fake; a production library (SQLite-backed, as in the original) lives
// outside this module's scope.
package medialib

import (
	"net/url"
	"strings"
	"sync"

	"github.com/machinefabric/xformd/value"
)

// EntryStatus mirrors the small status enum the original stamps onto a
// media-library entry after a successful chain run.
type EntryStatus int

const (
	StatusOK EntryStatus = iota
	StatusError
)

// Session is a single begin/end-bracketed unit of work against the
// library, as produced by Library.Begin or Library.BeginWrite.
type Session interface {
	GetStr(entry uint64, key string) (string, bool)
	GetInt(entry uint64, key string) (int32, bool)

	SetStr(entry uint64, key, v string)
	SetInt(entry uint64, key string, v int32)
	SetStrSource(entry uint64, key, v string, source uint32)
	SetIntSource(entry uint64, key string, v int32, source uint32)

	// Cleanup removes stale per-source properties previously written by
	// a source id that no longer contributed during this run, mirroring
	// xmms_medialib_entry_cleanup ahead of a fresh metadata collect.
	Cleanup(entry uint64)
	SetStatus(entry uint64, status EntryStatus)
	SendUpdate(entry uint64)
}

// Library is the collaborator interface the chain builder and metadata
// collector consume; see spec §6 "Media-library interface consumed".
type Library interface {
	Begin() (Session, error)
	BeginWrite() (Session, error)
	End(Session)
	// SourceToID maps a source name (e.g. "plugin/vorbis") to a stable
	// numeric source id, allocating one on first use.
	SourceToID(name string) uint32
}

// URLEncode percent-encodes s for inclusion in a path segment. The
// original mutates its argument in place; Go strings are immutable, so
// this returns the encoded copy instead (see DESIGN.md).
func URLEncode(s string) string {
	return url.PathEscape(s)
}

// DecodeURL percent-decodes s. Invalid escapes are left verbatim rather
// than erroring, matching the original's lenient in-place decoder.
func DecodeURL(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// JoinURL composes a base URL and a filename the way browse_add_entry
// does: filename is URL-encoded and joined to base with a single "/" unless
// base already ends in one. base is used verbatim; it is not URL-encoded.
func JoinURL(base, filename string) string {
	encBase := base
	encName := URLEncode(filename)
	if strings.HasSuffix(encBase, "/") {
		return encBase + encName
	}
	return encBase + "/" + encName
}

type entryRecord struct {
	props      map[string]value.Value
	bySource   map[uint32]map[string]value.Value
	status     EntryStatus
	updateLog  int
}

// MemLibrary is an in-memory Library fake suitable for tests and the demo
// CLI. It is not safe-by-convention across concurrent sessions beyond its
// internal mutex; the original serializes access the same way via a single
// writer lock per session kind.
type MemLibrary struct {
	mu      sync.Mutex
	entries map[uint64]*entryRecord
	sources map[string]uint32
	nextSrc uint32
}

func NewMemLibrary() *MemLibrary {
	return &MemLibrary{
		entries: make(map[uint64]*entryRecord),
		sources: make(map[string]uint32),
	}
}

func (m *MemLibrary) record(entry uint64) *entryRecord {
	r, ok := m.entries[entry]
	if !ok {
		r = &entryRecord{
			props:    make(map[string]value.Value),
			bySource: make(map[uint32]map[string]value.Value),
		}
		m.entries[entry] = r
	}
	return r
}

func (m *MemLibrary) SourceToID(name string) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.sources[name]; ok {
		return id
	}
	m.nextSrc++
	m.sources[name] = m.nextSrc
	return m.nextSrc
}

func (m *MemLibrary) Begin() (Session, error)      { return &memSession{lib: m}, nil }
func (m *MemLibrary) BeginWrite() (Session, error) { return &memSession{lib: m, write: true}, nil }
func (m *MemLibrary) End(Session)                  {}

var _ Library = (*MemLibrary)(nil)

type memSession struct {
	lib   *MemLibrary
	write bool
}

func (s *memSession) GetStr(entry uint64, key string) (string, bool) {
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	v, ok := s.lib.record(entry).props[key]
	if !ok {
		return "", false
	}
	return v.AsString()
}

func (s *memSession) GetInt(entry uint64, key string) (int32, bool) {
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	v, ok := s.lib.record(entry).props[key]
	if !ok {
		return 0, false
	}
	return v.AsInt32()
}

func (s *memSession) SetStr(entry uint64, key, v string) {
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	s.lib.record(entry).props[key] = value.String(v)
}

func (s *memSession) SetInt(entry uint64, key string, v int32) {
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	s.lib.record(entry).props[key] = value.Int32(v)
}

func (s *memSession) SetStrSource(entry uint64, key, v string, source uint32) {
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	rec := s.lib.record(entry)
	bySrc, ok := rec.bySource[source]
	if !ok {
		bySrc = make(map[string]value.Value)
		rec.bySource[source] = bySrc
	}
	bySrc[key] = value.String(v)
	rec.props[key] = value.String(v)
}

func (s *memSession) SetIntSource(entry uint64, key string, v int32, source uint32) {
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	rec := s.lib.record(entry)
	bySrc, ok := rec.bySource[source]
	if !ok {
		bySrc = make(map[string]value.Value)
		rec.bySource[source] = bySrc
	}
	bySrc[key] = value.Int32(v)
	rec.props[key] = value.Int32(v)
}

func (s *memSession) Cleanup(entry uint64) {
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	rec := s.lib.record(entry)
	rec.bySource = make(map[uint32]map[string]value.Value)
}

func (s *memSession) SetStatus(entry uint64, status EntryStatus) {
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	s.lib.record(entry).status = status
}

func (s *memSession) SendUpdate(entry uint64) {
	s.lib.mu.Lock()
	defer s.lib.mu.Unlock()
	s.lib.record(entry).updateLog++
}

// UpdateCount reports how many SendUpdate notifications an entry has
// received; exposed for assertions in tests.
func (m *MemLibrary) UpdateCount(entry uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.entries[entry]
	if !ok {
		return 0
	}
	return r.updateLog
}

// Status returns the stored status for entry, defaulting to StatusOK for
// an entry never explicitly set.
func (m *MemLibrary) Status(entry uint64) EntryStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.entries[entry]
	if !ok {
		return StatusOK
	}
	return r.status
}
