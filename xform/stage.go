// Package xform implements the transform-chain core: stages, the buffered
// peek/read/seek protocol, hotspots, metadata collection, chain assembly
// and browse mode.
package xform

import (
	"log/slog"

	"github.com/machinefabric/xformd/pluginapi"
	"github.com/machinefabric/xformd/streamtype"
	"github.com/machinefabric/xformd/value"
)

const (
	// readChunk is the growth increment Peek uses when filling its
	// buffer; Read instead requests exactly the number of bytes still
	// needed, matching the original's this_peek vs this_read sizing.
	readChunk = 4096
	// maxLineSize bounds ReadLine's carry buffer.
	maxLineSize = 1024
)

// hotspot is a pending (key, value) event attached to an exact byte offset
// in a stage's buffer.
type hotspot struct {
	pos int
	key string
	val value.Value
}

// Stage is one node of the transform chain.
type Stage struct {
	prev   *Stage
	plugin *pluginapi.Plugin
	entry  uint64
	logger *slog.Logger

	outType *streamtype.StreamType

	buffer   []byte
	buffered int

	hotspots []hotspot

	metadata          map[string]value.Value
	privdata          map[string]value.Value
	metadataCollected bool
	metadataChanged   bool

	eos     bool
	errored bool
	lastErr *Error

	lr []byte // line-read carry buffer

	goalHints []*streamtype.StreamType

	browseList []map[string]value.Value

	instance any // plugin-private per-stage state

	// onMetadataFlush, when set, is invoked after any plugin read made by
	// Read (not Peek) that leaves metadataChanged true on a
	// metadataCollected stage; the
	// chain builder wires this to the incremental medialib write path
	// described in spec §4.2/§4.7.
	onMetadataFlush func(*Stage)
}

// NewHeadStage creates the synthetic, plugin-less head of a chain: its
// out_type advertises the starting URL and nothing else.
func NewHeadStage(url string, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{
		logger:   logger,
		outType:  streamtype.New(streamtype.Str(streamtype.MIMETYPE, "application/x-url"), streamtype.Str(streamtype.URL, url)),
		metadata: make(map[string]value.Value),
		privdata: make(map[string]value.Value),
	}
}

// newPluginStage instantiates a new stage atop prev by calling the
// plugin's Init method. Init must call SetOutType before returning true;
// failing to do so, or returning false, yields an error and no stage.
func newPluginStage(prev *Stage, plugin *pluginapi.Plugin, entry uint64, goalHints []*streamtype.StreamType, logger *slog.Logger) (*Stage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stage{
		prev:      prev,
		plugin:    plugin,
		entry:     entry,
		logger:    logger,
		metadata:  make(map[string]value.Value),
		privdata:  make(map[string]value.Value),
		goalHints: goalHints,
	}
	if !plugin.Methods.Init(s) {
		return nil, newError(NoMatchingPlugin, "plugin %q failed to initialize", plugin.ShortName)
	}
	if s.outType == nil {
		return nil, newError(NoMatchingPlugin, "plugin %q did not set an out_type from Init", plugin.ShortName)
	}
	return s, nil
}

// Prev returns the upstream stage, or nil for the head.
func (s *Stage) Prev() *Stage { return s.prev }

// Plugin returns the plugin backing this stage, or nil for the head.
func (s *Stage) Plugin() *pluginapi.Plugin { return s.plugin }

// OutType implements pluginapi.Stage.
func (s *Stage) OutType() *streamtype.StreamType { return s.outType }

// SetOutType implements pluginapi.Stage.
func (s *Stage) SetOutType(t *streamtype.StreamType) { s.outType = t }

// Entry implements pluginapi.Stage.
func (s *Stage) Entry() uint64 { return s.entry }

// GoalHints implements pluginapi.Stage.
func (s *Stage) GoalHints() []*streamtype.StreamType { return s.goalHints }

// SetInstance stores plugin-private per-stage state.
func (s *Stage) SetInstance(v any) { s.instance = v }

// Instance returns the plugin-private per-stage state.
func (s *Stage) Instance() any { return s.instance }

// IsEOS reports the stage's sticky end-of-stream flag.
func (s *Stage) IsEOS() bool { return s.eos }

// IsErrored reports the stage's sticky error flag.
func (s *Stage) IsErrored() bool { return s.errored }

// PeekPrev/ReadPrev/SeekPrev/ReadLinePrev/URLPrev implement pluginapi.Stage:
// a plugin's own methods call these to pull from its upstream neighbor.
func (s *Stage) PeekPrev(buf []byte) (int, error) {
	if s.prev == nil {
		return -1, newError(TransientIO, "stage has no upstream to peek")
	}
	return s.prev.Peek(buf)
}

func (s *Stage) ReadPrev(buf []byte) (int, error) {
	if s.prev == nil {
		return -1, newError(TransientIO, "stage has no upstream to read")
	}
	return s.prev.Read(buf)
}

func (s *Stage) SeekPrev(offset int64, whence int) (int64, error) {
	if s.prev == nil {
		return -1, newError(TransientIO, "stage has no upstream to seek")
	}
	return s.prev.Seek(offset, whence)
}

func (s *Stage) ReadLinePrev() ([]byte, error) {
	if s.prev == nil {
		return nil, newError(TransientIO, "stage has no upstream to read a line from")
	}
	return s.prev.ReadLine()
}

func (s *Stage) URLPrev() (string, bool) {
	if s.prev == nil {
		return "", false
	}
	return s.prev.URL()
}

// URL recursively walks toward the source for the stream's URL, mirroring
// xmms_xform_get_url.
func (s *Stage) URL() (string, bool) {
	if u, ok := s.outType.GetStr(streamtype.URL); ok {
		return u, true
	}
	if s.prev != nil {
		return s.prev.URL()
	}
	return "", false
}

// IndataFindString recursively walks this stage's out_type, then its
// upstream chain, for the first stage whose out_type carries key,
// mirroring xmms_xform_indata_find_str. It is distinct from
// MetadataGetVal, which walks the metadata maps rather than out_type.
func (s *Stage) IndataFindString(key streamtype.Key) (string, bool) {
	if v, ok := s.outType.GetStr(key); ok {
		return v, true
	}
	if s.prev != nil {
		return s.prev.IndataFindString(key)
	}
	return "", false
}

// ---- metadata ----

// MetadataSetStr implements pluginapi.Stage. It dedupes: setting the same
// string value again leaves metadataChanged untouched.
func (s *Stage) MetadataSetStr(key, v string) {
	s.metadataSet(key, value.String(v))
}

// MetadataSetInt implements pluginapi.Stage.
func (s *Stage) MetadataSetInt(key string, v int32) {
	s.metadataSet(key, value.Int32(v))
}

func (s *Stage) metadataSet(key string, v value.Value) {
	if existing, ok := s.metadata[key]; ok && value.Equal(existing, v) {
		return
	}
	s.metadata[key] = v
	s.metadataChanged = true
}

// MetadataGetVal scans this stage's metadata, then walks the prev chain
// until a hit, giving downstream stages access to upstream metadata.
func (s *Stage) MetadataGetVal(key string) (value.Value, bool) {
	if v, ok := s.metadata[key]; ok {
		return v, true
	}
	if s.prev != nil {
		return s.prev.MetadataGetVal(key)
	}
	return value.Value{}, false
}

// ---- hotspots / privdata ----

func (s *Stage) enqueueHotspot(key string, v value.Value) {
	s.hotspots = append(s.hotspots, hotspot{pos: s.buffered, key: key, val: v})
}

// PrivdataSetStr implements pluginapi.Stage.
func (s *Stage) PrivdataSetStr(key, v string) { s.enqueueHotspot(key, value.String(v)) }

// PrivdataSetInt implements pluginapi.Stage.
func (s *Stage) PrivdataSetInt(key string, v int32) { s.enqueueHotspot(key, value.Int32(v)) }

// PrivdataSetBin implements pluginapi.Stage.
func (s *Stage) PrivdataSetBin(key string, v []byte) { s.enqueueHotspot(key, value.Binary(v)) }

// hotspotsUpdate pops every head-of-queue hotspot with pos == 0 into
// privdata. Called at the top of Read and after every plugin read within
// Read's loop; never called from Peek (a peek without a subsequent read
// must not fire hotspots).
func (s *Stage) hotspotsUpdate() {
	for len(s.hotspots) > 0 && s.hotspots[0].pos == 0 {
		hs := s.hotspots[0]
		s.hotspots = s.hotspots[1:]
		s.privdata[hs.key] = hs.val
	}
}

// nextHotspotPos returns the position of the next remaining hotspot, or -1
// if none are queued.
func (s *Stage) nextHotspotPos() int {
	if len(s.hotspots) == 0 {
		return -1
	}
	return s.hotspots[0].pos
}

// PrivdataGetVal looks up key in prev's privdata. It also scans prev's
// hotspot queue from the front while pos == 0 first, to catch a value
// enqueued at the exact current boundary by a zero-byte-progress plugin
// read (spec §4.3 edge case).
func (s *Stage) PrivdataGetVal(key string) (value.Value, bool) {
	if s.prev == nil {
		return value.Value{}, false
	}
	s.prev.hotspotsUpdate()
	v, ok := s.prev.privdata[key]
	return v, ok
}

func (s *Stage) PrivdataGetStr(key string) (string, bool) {
	v, ok := s.PrivdataGetVal(key)
	if !ok {
		return "", false
	}
	return v.AsString()
}

func (s *Stage) PrivdataGetInt(key string) (int32, bool) {
	v, ok := s.PrivdataGetVal(key)
	if !ok {
		return 0, false
	}
	return v.AsInt32()
}

// ---- buffer management ----

func (s *Stage) growBuffer(extra int) {
	needed := s.buffered + extra
	if len(s.buffer) >= needed {
		return
	}
	newCap := len(s.buffer)
	if newCap == 0 {
		newCap = readChunk
	}
	for newCap < needed {
		newCap *= 2
	}
	nb := make([]byte, newCap)
	copy(nb, s.buffer[:s.buffered])
	s.buffer = nb
}

// consumeBuffer removes the first n bytes of buffer, shifting the
// remainder down, and decrements every hotspot's pos by n. Callers must
// have already run hotspotsUpdate so no hotspot is at pos 0 going in,
// avoiding underflow.
func (s *Stage) consumeBuffer(n int) {
	copy(s.buffer, s.buffer[n:s.buffered])
	s.buffered -= n
	for i := range s.hotspots {
		s.hotspots[i].pos -= n
	}
}

// ---- buffered I/O protocol ----

// Peek ensures this stage's buffer holds at least len(buf) bytes (growing
// geometrically in readChunk increments by invoking the plugin's Read
// method), then copies min(len(buf), buffered) bytes into buf without
// consuming them. It never fires hotspots.
func (s *Stage) Peek(buf []byte) (int, error) {
	if s.errored {
		return -1, s.lastErr
	}
	n := len(buf)
	for s.buffered < n && !s.eos {
		s.growBuffer(readChunk)
		read, err := s.plugin.Methods.Read(s, s.buffer[s.buffered:s.buffered+readChunk])
		if err != nil {
			s.errored = true
			s.lastErr = newError(TransientIO, "%v", err)
			return -1, s.lastErr
		}
		if read < 0 {
			s.errored = true
			s.lastErr = newError(ProtocolViolation, "plugin %q returned negative byte count %d", s.plugin.ShortName, read)
			s.logger.Warn("BUG IN PLUGIN", "plugin", s.plugin.ShortName, "n", read)
			return -1, s.lastErr
		}
		if read == 0 {
			s.eos = true
			break
		}
		s.buffered += read
	}
	copied := n
	if copied > s.buffered {
		copied = s.buffered
	}
	copy(buf[:copied], s.buffer[:copied])
	return copied, nil
}

// Read implements the consuming read described in spec §4.2: it drains
// due hotspots, clamps the serve length to the next hotspot boundary,
// serves buffered bytes first, and otherwise pulls exactly as many bytes
// as still needed from the plugin into its own buffer.
func (s *Stage) Read(buf []byte) (int, error) {
	if s.plugin == nil {
		return -1, newError(TransientIO, "head stage has no plugin to read from")
	}
	if s.errored {
		return -1, s.lastErr
	}
	total := len(buf)
	served := 0
	for {
		s.hotspotsUpdate()
		limit := total - served
		if hp := s.nextHotspotPos(); hp >= 0 && hp < limit {
			limit = hp
		}
		if s.buffered > 0 && limit > 0 {
			take := limit
			if take > s.buffered {
				take = s.buffered
			}
			copy(buf[served:served+take], s.buffer[:take])
			s.consumeBuffer(take)
			served += take
			continue
		}
		if served >= total {
			return served, nil
		}
		if s.eos {
			return served, nil
		}
		if limit == 0 {
			// A hotspot sits exactly at the current boundary but
			// hotspotsUpdate just ran and found no pos==0 entry;
			// nothing more can be served this call without risking
			// an infinite loop.
			return served, nil
		}
		s.growBuffer(limit)
		read, err := s.plugin.Methods.Read(s, s.buffer[s.buffered:s.buffered+limit])
		if err != nil {
			s.errored = true
			s.lastErr = newError(TransientIO, "%v", err)
			return -1, s.lastErr
		}
		if read < 0 {
			s.errored = true
			s.lastErr = newError(ProtocolViolation, "plugin %q returned negative byte count %d", s.plugin.ShortName, read)
			s.logger.Warn("BUG IN PLUGIN", "plugin", s.plugin.ShortName, "n", read)
			return -1, s.lastErr
		}
		if read == 0 {
			s.eos = true
			continue
		}
		s.buffered += read
		if s.metadataCollected && s.metadataChanged {
			if s.onMetadataFlush != nil {
				s.onMetadataFlush(s)
			}
			s.metadataChanged = false
		}
	}
}

// Seek is allowed only when the plugin declares a Seek method. On
// success it clears eos, discards the buffer, and flushes the entire
// hotspot queue, since hotspot offsets are only meaningful against the
// buffer contents that existed before the seek.
func (s *Stage) Seek(offset int64, whence int) (int64, error) {
	if s.plugin == nil || !s.plugin.Methods.HasSeek {
		return -1, newError(UnseekableStage, "stage has no seek method")
	}
	if whence == SeekCur {
		offset -= int64(s.buffered)
	}
	pos, err := s.plugin.Methods.Seek(s, offset, whence)
	if err != nil {
		s.errored = true
		s.lastErr = newError(TransientIO, "%v", err)
		return -1, s.lastErr
	}
	s.eos = false
	s.buffered = 0
	s.hotspots = nil
	return pos, nil
}

// Seek whence constants, identical to standard file seek.
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

// ReadLine maintains a carry buffer of up to maxLineSize-1 bytes, refilling
// via Read when no '\n' is present, and strips at most one '\r' before the
// '\n'. It returns (nil, nil) at EOF with an empty carry.
func (s *Stage) ReadLine() ([]byte, error) {
	for {
		if idx := indexByte(s.lr, '\n'); idx >= 0 {
			line := make([]byte, idx)
			copy(line, s.lr[:idx])
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			rest := make([]byte, len(s.lr)-idx-1)
			copy(rest, s.lr[idx+1:])
			s.lr = rest
			return line, nil
		}
		if len(s.lr) >= maxLineSize-1 {
			// Carry is full with no newline; flush it as a line to
			// bound memory, matching MAX_LINE_SIZE's role as a cap.
			line := s.lr
			s.lr = nil
			return line, nil
		}
		chunk := make([]byte, maxLineSize-1-len(s.lr))
		n, err := s.Read(chunk)
		if n > 0 {
			s.lr = append(s.lr, chunk[:n]...)
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			if len(s.lr) == 0 {
				return nil, nil
			}
			line := s.lr
			s.lr = nil
			return line, nil
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// ---- browse ----

// BrowseAddEntry implements pluginapi.Stage; see browse.go for the full
// algorithm.
func (s *Stage) BrowseAddEntry(filename string, props map[string]value.Value) error {
	return s.browseAddEntry(filename, props)
}

// BrowseAddEntrySymlink implements pluginapi.Stage.
func (s *Stage) BrowseAddEntrySymlink(filename, link string, args []string, props map[string]value.Value) error {
	return s.browseAddEntrySymlink(filename, link, args, props)
}

// BrowseList returns the accumulated, sorted browse result.
func (s *Stage) BrowseList() []map[string]value.Value { return s.browseList }

var _ pluginapi.Stage = (*Stage)(nil)
