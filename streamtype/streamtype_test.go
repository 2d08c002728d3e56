package streamtype

import "testing"

func TestMatchWildcardWhenPatternKeyUnset(t *testing.T) {
	pattern := New(Str(MIMETYPE, "audio/pcm"))
	concrete := New(Str(MIMETYPE, "audio/pcm"), Int(FMT_CHANNELS, 2))
	if !Match(pattern, concrete) {
		t.Fatalf("expected match: pattern leaves FMT_CHANNELS unconstrained")
	}
}

func TestMatchRejectsWhenConcreteMissingKey(t *testing.T) {
	pattern := New(Str(MIMETYPE, "audio/pcm"), Int(FMT_CHANNELS, 2))
	concrete := New(Str(MIMETYPE, "audio/pcm"))
	if Match(pattern, concrete) {
		t.Fatalf("expected rejection: concrete lacks FMT_CHANNELS")
	}
}

func TestMatchRejectsOnValueMismatch(t *testing.T) {
	pattern := New(Str(MIMETYPE, "audio/pcm"))
	concrete := New(Str(MIMETYPE, "audio/flac"))
	if Match(pattern, concrete) {
		t.Fatalf("expected rejection on mismatched MIMETYPE")
	}
}

func TestGetIntUnsetReturnsMinusOne(t *testing.T) {
	st := New(Str(URL, "file:///song.ogg"))
	if got := st.GetInt(FMT_SAMPLERATE); got != -1 {
		t.Fatalf("expected -1 for unset key, got %d", got)
	}
}

func TestMatchesAny(t *testing.T) {
	concrete := New(Str(MIMETYPE, "audio/pcm"), Int(FMT_SAMPLERATE, 44100), Int(FMT_CHANNELS, 2))
	goals := []*StreamType{
		New(Str(MIMETYPE, "audio/flac")),
		New(Str(MIMETYPE, "audio/pcm"), Int(FMT_SAMPLERATE, 44100), Int(FMT_CHANNELS, 2)),
	}
	if !MatchesAny(concrete, goals) {
		t.Fatalf("expected concrete to match the second goal")
	}
}
