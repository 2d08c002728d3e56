package xform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/machinefabric/xformd/config"
	"github.com/machinefabric/xformd/medialib"
	"github.com/machinefabric/xformd/pluginapi"
	"github.com/machinefabric/xformd/streamtype"
)

// filePlugin is a source that always advertises application/octet-stream.
func filePlugin() *pluginapi.Plugin {
	return &pluginapi.Plugin{
		ShortName: "file",
		Methods: pluginapi.Methods{
			Init: func(s pluginapi.Stage) bool {
				s.SetOutType(streamtype.New(streamtype.Str(streamtype.MIMETYPE, "application/octet-stream")))
				return true
			},
			Read: func(s pluginapi.Stage, buf []byte) (int, error) { return 0, nil },
		},
	}
}

// vorbisPlugin decodes application/octet-stream into application/x-vorbis.
func vorbisPlugin() *pluginapi.Plugin {
	return &pluginapi.Plugin{
		ShortName: "vorbis",
		AcceptedInputTypes: []*streamtype.StreamType{
			streamtype.New(streamtype.Str(streamtype.MIMETYPE, "application/octet-stream")),
		},
		Methods: pluginapi.Methods{
			Init: func(s pluginapi.Stage) bool {
				s.SetOutType(streamtype.New(streamtype.Str(streamtype.MIMETYPE, "application/x-vorbis")))
				return true
			},
			Read: func(s pluginapi.Stage, buf []byte) (int, error) { return 0, nil },
		},
	}
}

// pcmPlugin decodes application/x-vorbis into the goal audio/pcm format.
func pcmPlugin() *pluginapi.Plugin {
	return &pluginapi.Plugin{
		ShortName: "pcm",
		AcceptedInputTypes: []*streamtype.StreamType{
			streamtype.New(streamtype.Str(streamtype.MIMETYPE, "application/x-vorbis")),
		},
		Methods: pluginapi.Methods{
			Init: func(s pluginapi.Stage) bool {
				s.SetOutType(streamtype.New(
					streamtype.Str(streamtype.MIMETYPE, "audio/pcm"),
					streamtype.Int(streamtype.FMT_SAMPLERATE, 44100),
					streamtype.Int(streamtype.FMT_CHANNELS, 2),
				))
				return true
			},
			Read: func(s pluginapi.Stage, buf []byte) (int, error) { return 0, nil },
		},
	}
}

func TestChainSetupBuildsFullChainAndCollectsMetadata(t *testing.T) {
	reg := newTestRegistry(filePlugin(), vorbisPlugin(), pcmPlugin())
	lib := medialib.NewMemLibrary()
	goal := []*streamtype.StreamType{
		streamtype.New(
			streamtype.Str(streamtype.MIMETYPE, "audio/pcm"),
			streamtype.Int(streamtype.FMT_SAMPLERATE, 44100),
			streamtype.Int(streamtype.FMT_CHANNELS, 2),
		),
	}

	last, err := ChainSetup(reg, lib, nil, "file", 1, "file:///song.ogg?gain=3", goal)
	require.NoError(t, err)

	// Walk to the head to inspect its metadata.
	head := last
	for head.Prev() != nil {
		head = head.Prev()
	}
	gain, ok := head.MetadataGetVal("gain")
	require.True(t, ok)
	gainStr, _ := gain.AsString()
	require.Equal(t, "3", gainStr)

	require.NoError(t, ChainFinalize(lib, nil, 1, last))

	sess, err := lib.Begin()
	require.NoError(t, err)
	chain, ok := sess.GetStr(1, "CHAIN")
	require.True(t, ok)
	require.Equal(t, "file:vorbis:pcm", chain)

	played, ok := sess.GetInt(1, "TIMESPLAYED")
	require.True(t, ok)
	require.Equal(t, int32(1), played)
	require.Equal(t, medialib.StatusOK, lib.Status(1))
}

func TestChainSetupExplicitSourceNeverAutoMatched(t *testing.T) {
	reg := newTestRegistry(filePlugin())
	lib := medialib.NewMemLibrary()

	found, ok := reg.FindPlugin(streamtype.New(streamtype.Str(streamtype.MIMETYPE, "whatever")))
	require.False(t, ok)
	require.Nil(t, found)

	goal := []*streamtype.StreamType{
		streamtype.New(streamtype.Str(streamtype.MIMETYPE, "application/octet-stream")),
	}
	_, err2 := ChainSetup(reg, lib, nil, "file", 0, "file:///song.ogg", goal)
	require.NoError(t, err2)
}

func TestAddEffectsStopsOnAbsentConfigKey(t *testing.T) {
	reg := newTestRegistry(filePlugin())
	lib := medialib.NewMemLibrary()
	cfg := config.NewStore()

	last, err := ChainSetup(reg, lib, nil, "file", 0, "file:///song.ogg", []*streamtype.StreamType{
		streamtype.New(streamtype.Str(streamtype.MIMETYPE, "application/octet-stream")),
	})
	require.NoError(t, err)

	out, err := AddEffects(last, cfg, reg, lib, nil, 0, nil)
	require.NoError(t, err)
	require.Same(t, last, out)

	v, ok := cfg.Lookup("effect.order.0")
	require.True(t, ok)
	require.Equal(t, "", v)
}
