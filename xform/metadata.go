package xform

import (
	"strings"
	"time"

	"github.com/machinefabric/xformd/medialib"
	"github.com/machinefabric/xformd/value"
)

// ChainName returns the colon-separated, source-first list of plugin short
// names backing last, e.g. "file:vorbis:pcm". The head stage (no plugin)
// contributes nothing.
func ChainName(last *Stage) string {
	return strings.Join(chainNames(last), ":")
}

func chainNames(s *Stage) []string {
	if s == nil || s.plugin == nil {
		return nil
	}
	names := chainNames(s.prev)
	return append(names, s.plugin.ShortName)
}

// CollectMetadata is the Metadata Collector (spec §4.7). It is a no-op for
// entry == 0: a browse-mode chain built without a library entry has
// nothing to write back, an Open Question resolved this way since the
// spec's walk unconditionally assumes a writable entry.
func CollectMetadata(library medialib.Library, entry uint64, last *Stage) error {
	if entry == 0 {
		return nil
	}
	sess, err := library.BeginWrite()
	if err != nil {
		return newError(TransientIO, "%v", err)
	}
	defer library.End(sess)

	timesPlayed, _ := sess.GetInt(entry, "TIMESPLAYED")
	sess.Cleanup(entry)

	var chainParts []string
	var walk func(s *Stage)
	walk = func(s *Stage) {
		if s == nil {
			return
		}
		walk(s.prev)
		if s.plugin == nil {
			return
		}
		chainParts = append(chainParts, s.plugin.ShortName)
		if s.metadataChanged {
			flushStageMetadata(library, sess, entry, s)
			s.metadataChanged = false
		}
		s.metadataCollected = true
	}
	walk(last)

	sess.SetStr(entry, "CHAIN", strings.Join(chainParts, ":"))
	sess.SetInt(entry, "TIMESPLAYED", timesPlayed+1)
	sess.SetInt(entry, "LASTSTARTED", int32(time.Now().Unix()))
	sess.SetStatus(entry, medialib.StatusOK)
	sess.SendUpdate(entry)
	return nil
}

// flushStageMetadata writes every entry of s's metadata map under a source
// id derived from its plugin's short name, shared by the full collector
// walk and the per-stage incremental update (spec §4.2, §4.7 last line).
func flushStageMetadata(library medialib.Library, sess medialib.Session, entry uint64, s *Stage) {
	sourceID := library.SourceToID("plugin/" + s.plugin.ShortName)
	for k, v := range s.metadata {
		switch v.Kind() {
		case value.KindString:
			sv, _ := v.AsString()
			sess.SetStrSource(entry, k, sv, sourceID)
		case value.KindInt32:
			iv, _ := v.AsInt32()
			sess.SetIntSource(entry, k, iv, sourceID)
		}
	}
}

// incrementalMetadataFlush is wired as a Stage's onMetadataFlush: the
// per-stage update path described in spec §4.2 uses the single-stage
// write without touching play counters.
func incrementalMetadataFlush(library medialib.Library, entry uint64) func(*Stage) {
	return func(s *Stage) {
		if entry == 0 || s.plugin == nil {
			return
		}
		sess, err := library.BeginWrite()
		if err != nil {
			return
		}
		defer library.End(sess)
		flushStageMetadata(library, sess, entry, s)
	}
}
