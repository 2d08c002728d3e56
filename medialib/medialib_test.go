package medialib

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestURLEncodeDecodeRoundTrip(t *testing.T) {
	for _, s := range []string{"song.ogg", "a/b", "weird name?.flac", "café.mp3"} {
		enc := URLEncode(s)
		dec := DecodeURL(enc)
		require.Equal(t, s, dec)
	}
}

func TestJoinURLRespectsTrailingSlash(t *testing.T) {
	require.Equal(t, "smb://host/share/song.ogg", JoinURL("smb://host/share", "song.ogg"))
	require.Equal(t, "smb://host/share/song.ogg", JoinURL("smb://host/share/", "song.ogg"))
}

func TestSourceToIDStableAndAllocating(t *testing.T) {
	lib := NewMemLibrary()
	id1 := lib.SourceToID("plugin/vorbis")
	id2 := lib.SourceToID("plugin/id3v2")
	id1Again := lib.SourceToID("plugin/vorbis")
	require.Equal(t, id1, id1Again)
	require.NotEqual(t, id1, id2)
}

func TestSessionSetGetAndCleanup(t *testing.T) {
	lib := NewMemLibrary()
	sess, err := lib.BeginWrite()
	require.NoError(t, err)

	src := lib.SourceToID("plugin/vorbis")
	sess.SetStrSource(1, "title", "Song", src)
	v, ok := sess.GetStr(1, "title")
	require.True(t, ok)
	require.Equal(t, "Song", v)

	sess.Cleanup(1)
	// Base property survives cleanup; only the per-source index is reset.
	v, ok = sess.GetStr(1, "title")
	require.True(t, ok)
	require.Equal(t, "Song", v)

	sess.SendUpdate(1)
	sess.SendUpdate(1)
	require.Equal(t, 2, lib.UpdateCount(1))
	lib.End(sess)
}
