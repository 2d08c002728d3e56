package pluginapi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/machinefabric/xformd/streamtype"
)

func sinkPlugin(name string, accepted ...*streamtype.StreamType) *Plugin {
	return &Plugin{
		ShortName:          name,
		AcceptedInputTypes: accepted,
		Methods: Methods{
			Init: func(s Stage) bool { return true },
			Read: func(s Stage, buf []byte) (int, error) { return 0, nil },
		},
	}
}

func TestMemRegistryFirstMatchWins(t *testing.T) {
	r := NewMemRegistry()
	flac := sinkPlugin("flac", streamtype.New(streamtype.Str(streamtype.MIMETYPE, "audio/flac")))
	vorbis := sinkPlugin("vorbis", streamtype.New(streamtype.Str(streamtype.MIMETYPE, "audio/flac")))
	require.NoError(t, r.Register(flac))
	require.NoError(t, r.Register(vorbis))

	concrete := streamtype.New(streamtype.Str(streamtype.MIMETYPE, "audio/flac"))
	found, ok := r.FindPlugin(concrete)
	require.True(t, ok)
	require.Equal(t, "flac", found.ShortName, "registration order decides ties, not specificity")
}

func TestSourcePluginNeverAutoMatched(t *testing.T) {
	r := NewMemRegistry()
	src := sinkPlugin("file") // empty AcceptedInputTypes -> source
	require.NoError(t, r.Register(src))

	concrete := streamtype.New(streamtype.Str(streamtype.MIMETYPE, "application/x-url"))
	_, ok := r.FindPlugin(concrete)
	require.False(t, ok, "a source plugin must never be auto-matched")

	byName, ok := r.FindByName("file")
	require.True(t, ok)
	require.True(t, byName.IsSource())
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	r := NewMemRegistry()
	require.NoError(t, r.Register(sinkPlugin("pcm")))
	require.Error(t, r.Register(sinkPlugin("pcm")))
}
