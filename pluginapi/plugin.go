// Package pluginapi defines the collaborator surface a transform plugin and
// a plugin registry must satisfy. xformd's own xform package depends only
// on these interfaces, never on a concrete plugin implementation.
package pluginapi

import (
	"github.com/machinefabric/xformd/streamtype"
	"github.com/machinefabric/xformd/value"
)

// Stage is the subset of *xform.Stage a plugin method is allowed to touch:
// its own output type, its own metadata/hotspot outputs, and read/seek of
// its upstream neighbor. xform.Stage satisfies this structurally so the two
// packages do not import each other.
type Stage interface {
	// OutType returns the stream-type this stage currently advertises.
	OutType() *streamtype.StreamType
	// SetOutType must be called exactly once by Init before it returns.
	SetOutType(*streamtype.StreamType)

	// Entry is the media-library entry id the chain is processing, or 0
	// in browse mode.
	Entry() uint64
	// GoalHints lists the stream-types the chain builder is aiming for;
	// informational only.
	GoalHints() []*streamtype.StreamType

	// PeekPrev/ReadPrev/SeekPrev delegate to the upstream stage. A plugin
	// calls these to pull bytes to transform.
	PeekPrev(buf []byte) (int, error)
	ReadPrev(buf []byte) (int, error)
	SeekPrev(offset int64, whence int) (int64, error)
	ReadLinePrev() ([]byte, error)
	URLPrev() (string, bool)

	// MetadataSetStr/MetadataSetInt record metadata on THIS stage.
	MetadataSetStr(key, v string)
	MetadataSetInt(key string, v int32)

	// PrivdataSetStr/Int/Bin enqueue a hotspot on THIS stage: once a
	// downstream reader has consumed up through the stage's current
	// buffered byte count, (key, value) is delivered into the
	// downstream stage's privdata.
	PrivdataSetStr(key, v string)
	PrivdataSetInt(key string, v int32)
	PrivdataSetBin(key string, v []byte)

	// BrowseAddEntry and BrowseAddEntrySymlink append to the browse
	// result list; only meaningful from within a Browse method.
	BrowseAddEntry(filename string, props map[string]value.Value) error
	BrowseAddEntrySymlink(filename, link string, args []string, props map[string]value.Value) error
}

// Methods is the capability set a plugin exposes. Per the design notes, an
// absent optional capability is represented by an explicit HasSeek/HasBrowse
// flag rather than by checking the corresponding func field for nil — a
// plugin that sets HasSeek but leaves Seek nil is a registration bug, not a
// silently-accepted "no seek support".
type Methods struct {
	// Init instantiates the stage's private state and MUST call
	// Stage.SetOutType before returning true.
	Init func(s Stage) bool
	// Destroy releases any resources Init acquired.
	Destroy func(s Stage)
	// Read produces up to len(buf) bytes. Returns (0, nil) at EOF,
	// (-1 semantics via error, nil) on failure — by Go convention this
	// returns (n, err): n==0 && err==nil means EOF, err!=nil means the
	// plugin failed (TransientIO).
	Read func(s Stage, buf []byte) (int, error)

	HasSeek bool
	Seek    func(s Stage, offset int64, whence int) (int64, error)

	HasBrowse bool
	Browse    func(s Stage, url string) (bool, error)
}

// Plugin is a transform plugin descriptor: a short name, the set of
// stream-types it accepts as input, and its method vtable. A plugin with an
// empty AcceptedInputTypes is a source: it is never auto-matched by the
// chain builder and must be chosen explicitly as the chain head.
type Plugin struct {
	ShortName          string
	AcceptedInputTypes []*streamtype.StreamType
	Methods            Methods
}

// IsSource reports whether this plugin has no declared input types.
func (p *Plugin) IsSource() bool {
	return len(p.AcceptedInputTypes) == 0
}

// Accepts reports whether this plugin can be auto-matched against concrete.
// Source plugins always report false here; they are wired in explicitly.
func (p *Plugin) Accepts(concrete *streamtype.StreamType) bool {
	if p.IsSource() {
		return false
	}
	for _, pattern := range p.AcceptedInputTypes {
		if streamtype.Match(pattern, concrete) {
			return true
		}
	}
	return false
}

// Registry is the collaborator the chain builder consults to resolve a
// stream-type into the next plugin. Implementations decide ordering;
// xform.ChainSetup asks for the FIRST accepting plugin, matching the
// original's single-pass xmms_plugin_foreach scan rather than the teacher's
// specificity-ranked CapHostRegistry lookup (see DESIGN.md).
type Registry interface {
	// FindPlugin returns the first registered plugin whose
	// AcceptedInputTypes accepts concrete, in registration order.
	FindPlugin(concrete *streamtype.StreamType) (*Plugin, bool)
	// FindByName looks up a plugin by its short name, used by the
	// effects loader (config key effect.order.N names a plugin).
	FindByName(name string) (*Plugin, bool)
	// Plugins returns all registered plugins in registration order.
	Plugins() []*Plugin
}
