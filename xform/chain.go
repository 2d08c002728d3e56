package xform

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/machinefabric/xformd/config"
	"github.com/machinefabric/xformd/medialib"
	"github.com/machinefabric/xformd/pluginapi"
	"github.com/machinefabric/xformd/streamtype"
)

// ChainSetup builds a transform chain from sourceName, the plugin chosen
// explicitly as the chain head (source plugins are never auto-matched;
// spec §3 C4), through auto-matched plugins until out_type satisfies one
// of goalFormats. entry is the media-library entry the chain operates on,
// or 0 for a run with no library backing (e.g. a one-off probe).
func ChainSetup(registry pluginapi.Registry, library medialib.Library, logger *slog.Logger, sourceName string, entry uint64, rawURL string, goalFormats []*streamtype.StreamType) (*Stage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	flush := incrementalMetadataFlush(library, entry)

	base, query := splitQuery(rawURL)
	head := NewHeadStage(medialib.DecodeURL(base), logger)
	applyQueryArgs(head, query)

	last := head

	source, ok := registry.FindByName(sourceName)
	if !ok {
		return nil, newError(NoMatchingPlugin, "no source plugin named %q registered", sourceName)
	}
	if !source.IsSource() {
		return nil, newError(NoMatchingPlugin, "plugin %q declares accepted input types; it cannot be used as a chain source", sourceName)
	}
	next, err := newPluginStage(last, source, entry, goalFormats, logger)
	if err != nil {
		return nil, err
	}
	next.onMetadataFlush = flush
	last = next

	for !streamtype.MatchesAny(last.OutType(), goalFormats) {
		plugin, ok := registry.FindPlugin(last.OutType())
		if !ok {
			mt, _ := last.OutType().GetStr(streamtype.MIMETYPE)
			logger.Error("no plugin matches stream type", "mimetype", mt)
			return nil, newError(NoMatchingPlugin, "no plugin accepts the current stream type")
		}
		next, err := newPluginStage(last, plugin, entry, goalFormats, logger)
		if err != nil {
			return nil, err
		}
		next.onMetadataFlush = flush
		last = next
	}

	if mt, ok := last.OutType().GetStr(streamtype.MIMETYPE); ok && mt == "audio/pcm" {
		if fmtStr, ok := last.OutType().GetStr(streamtype.FMT_FORMAT); ok {
			last.MetadataSetStr("samplefmt", fmtStr)
		}
		if sr := last.OutType().GetInt(streamtype.FMT_SAMPLERATE); sr >= 0 {
			last.MetadataSetInt("samplerate", sr)
		}
		if ch := last.OutType().GetInt(streamtype.FMT_CHANNELS); ch >= 0 {
			last.MetadataSetInt("channels", ch)
		}
	}

	return last, nil
}

// splitQuery separates rawURL into its base and query-string parts on the
// first "?", matching the original's plain split rather than a full URL
// parse (stream-type URLs are not always well-formed RFC 3986 URLs).
func splitQuery(rawURL string) (base, query string) {
	if idx := strings.IndexByte(rawURL, '?'); idx >= 0 {
		return rawURL[:idx], rawURL[idx+1:]
	}
	return rawURL, ""
}

// applyQueryArgs decodes "a=b&c=d" pairs off a chain URL and sets them as
// head metadata: metadata_str(key, value) when a "=" is present, or
// metadata_int(key, 1) for a bare flag.
func applyQueryArgs(head *Stage, query string) {
	if query == "" {
		return
	}
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		if idx := strings.IndexByte(pair, '='); idx >= 0 {
			key, _ := url.QueryUnescape(pair[:idx])
			val, _ := url.QueryUnescape(pair[idx+1:])
			head.MetadataSetStr(key, val)
		} else {
			key, _ := url.QueryUnescape(pair)
			head.MetadataSetInt(key, 1)
		}
	}
}

// AddEffects appends the configured effect chain atop last, reading
// effect.order.0, effect.order.1, … until an absent key (registered with
// an empty default, then stopped) or an empty name is found.
func AddEffects(last *Stage, cfg *config.Store, registry pluginapi.Registry, library medialib.Library, logger *slog.Logger, entry uint64, goalFormats []*streamtype.StreamType) (*Stage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	flush := incrementalMetadataFlush(library, entry)
	for i := 0; ; i++ {
		key := fmt.Sprintf("effect.order.%d", i)
		name, ok := cfg.Lookup(key)
		if !ok {
			cfg.RegisterDefault(key, "")
			break
		}
		if name == "" {
			break
		}

		plugin, ok := registry.FindByName(name)
		if !ok {
			logger.Warn("effect plugin not found", "plugin", name)
			continue
		}
		cfg.RegisterDefault(plugin.ShortName+".enabled", "0")

		if !plugin.Accepts(last.OutType()) {
			continue
		}
		next, err := newPluginStage(last, plugin, entry, goalFormats, logger)
		if err != nil {
			return nil, err
		}
		next.onMetadataFlush = flush
		last = next
	}
	return last, nil
}

// ChainFinalize runs the Metadata Collector over the finished chain and
// logs its plugin chain name.
func ChainFinalize(library medialib.Library, logger *slog.Logger, entry uint64, last *Stage) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := CollectMetadata(library, entry, last); err != nil {
		return err
	}
	logger.Info("chain finalized", "chain", ChainName(last))
	return nil
}
