package xform

import (
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/machinefabric/xformd/medialib"
	"github.com/machinefabric/xformd/pluginapi"
	"github.com/machinefabric/xformd/streamtype"
	"github.com/machinefabric/xformd/value"
)

// Browse runs a single plugin's Browse method against url and returns the
// sorted directory listing, mirroring xmms_xform_browse. The stage used to
// drive Browse is a throwaway: it exists only to give the plugin a place
// to call BrowseAddEntry/BrowseAddEntrySymlink.
func Browse(registry pluginapi.Registry, url string) ([]map[string]value.Value, error) {
	concrete := streamtype.New(streamtype.Str(streamtype.MIMETYPE, "application/x-url"), streamtype.Str(streamtype.URL, url))

	plugin, ok := findBrowsePlugin(registry, url, concrete)
	if !ok {
		return nil, newError(UnknownBrowseTarget, "no plugin can browse %q", url)
	}

	s := &Stage{
		logger:   slog.Default(),
		outType:  concrete,
		metadata: make(map[string]value.Value),
		privdata: make(map[string]value.Value),
		plugin:   plugin,
	}

	ok2, err := plugin.Methods.Browse(s, url)
	if err != nil {
		return nil, newError(TransientIO, "%v", err)
	}
	if !ok2 {
		return nil, newError(UnknownBrowseTarget, "plugin %q could not browse %q", plugin.ShortName, url)
	}

	sortBrowseList(s.browseList)
	return s.browseList, nil
}

// findBrowsePlugin picks the plugin that declares HasBrowse and either is a
// source whose ShortName prefixes the URL's scheme, or whose
// AcceptedInputTypes accepts the synthetic URL stream-type. Source plugins
// are never auto-matched for transforms, but browse is the one place they
// are addressed directly by the URL they own.
func findBrowsePlugin(registry pluginapi.Registry, url string, concrete *streamtype.StreamType) (*pluginapi.Plugin, bool) {
	scheme := url
	if idx := strings.Index(url, "://"); idx >= 0 {
		scheme = url[:idx]
	}
	for _, p := range registry.Plugins() {
		if !p.Methods.HasBrowse {
			continue
		}
		if p.IsSource() {
			if p.ShortName == scheme {
				return p, true
			}
			continue
		}
		if p.Accepts(concrete) {
			return p, true
		}
	}
	return nil, false
}

func (s *Stage) browseAddEntry(filename string, props map[string]value.Value) error {
	return s.browseAdd(filename, "", nil, props)
}

func (s *Stage) browseAddEntrySymlink(filename, link string, args []string, props map[string]value.Value) error {
	return s.browseAdd(filename, link, args, props)
}

func (s *Stage) browseAdd(filename, realpath string, args []string, props map[string]value.Value) error {
	if strings.Contains(filename, "/") {
		return newError(ProtocolViolation, "browse entry filename %q must not contain '/'", filename)
	}
	base, _ := s.outType.GetStr(streamtype.URL)
	entry := make(map[string]value.Value, len(props)+3)
	for k, v := range props {
		entry[k] = v
	}
	entry["path"] = value.String(medialib.JoinURL(base, filename))
	if realpath != "" {
		target := realpath
		if len(args) > 0 {
			target = realpath + "?" + strings.Join(args, "&")
		}
		entry["realpath"] = value.String(target)
	}
	if _, ok := entry["isdir"]; !ok {
		entry["isdir"] = value.Int32(0)
	}
	s.browseList = append(s.browseList, entry)
	return nil
}

// sortBrowseList orders entries the way xmms_xform_browse's caller does:
// entries carrying an "intsort" property sort numerically on that key
// first; everything else follows, collated on "path" using Unicode
// collation rules so accented names interleave correctly instead of
// sorting purely by byte value. Ties keep their original (insertion)
// order, since sort.SliceStable is used throughout.
func sortBrowseList(entries []map[string]value.Value) {
	col := collate.New(language.Und)

	sort.SliceStable(entries, func(i, j int) bool {
		var iv, jv int32
		var iok, jok bool
		if v, present := entries[i]["intsort"]; present {
			iv, iok = v.AsInt32()
		}
		if v, present := entries[j]["intsort"]; present {
			jv, jok = v.AsInt32()
		}
		switch {
		case iok && jok:
			return iv < jv
		case iok && !jok:
			return true
		case !iok && jok:
			return false
		}
		ip, _ := entries[i]["path"].AsString()
		jp, _ := entries[j]["path"].AsString()
		return col.CompareString(ip, jp) < 0
	})
}
