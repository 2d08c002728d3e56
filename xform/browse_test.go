package xform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/machinefabric/xformd/pluginapi"
	"github.com/machinefabric/xformd/value"
)

func smbBrowsePlugin(names ...string) *pluginapi.Plugin {
	return &pluginapi.Plugin{
		ShortName: "smb",
		Methods: pluginapi.Methods{
			Init: func(s pluginapi.Stage) bool { return true },
			Read: func(s pluginapi.Stage, buf []byte) (int, error) { return 0, nil },
			HasBrowse: true,
			Browse: func(s pluginapi.Stage, url string) (bool, error) {
				for _, n := range names {
					if err := s.BrowseAddEntry(n, nil); err != nil {
						return false, err
					}
				}
				return true, nil
			},
		},
	}
}

func TestBrowseSortsByUnicodeCollationWhenNoIntsort(t *testing.T) {
	reg := newTestRegistry(smbBrowsePlugin("b", "A", "c"))

	entries, err := Browse(reg, "smb://host/share")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	var names []string
	for _, e := range entries {
		p, _ := e["path"].AsString()
		names = append(names, p)
	}
	require.Equal(t, []string{
		"smb://host/share/A",
		"smb://host/share/b",
		"smb://host/share/c",
	}, names)
}

func TestBrowseRejectsSlashInFilename(t *testing.T) {
	reg := newTestRegistry(smbBrowsePlugin("a/b"))
	_, err := Browse(reg, "smb://host/share")
	require.Error(t, err)
}

func TestBrowseIntsortTakesPrecedenceOverPath(t *testing.T) {
	plugin := &pluginapi.Plugin{
		ShortName: "smb",
		Methods: pluginapi.Methods{
			Init:      func(s pluginapi.Stage) bool { return true },
			Read:      func(s pluginapi.Stage, buf []byte) (int, error) { return 0, nil },
			HasBrowse: true,
			Browse: func(s pluginapi.Stage, url string) (bool, error) {
				s.BrowseAddEntry("z", map[string]value.Value{"intsort": value.Int32(1)})
				s.BrowseAddEntry("a", map[string]value.Value{"intsort": value.Int32(0)})
				return true, nil
			},
		},
	}
	reg := newTestRegistry(plugin)
	entries, err := Browse(reg, "smb://host/share")
	require.NoError(t, err)
	p0, _ := entries[0]["path"].AsString()
	require.Equal(t, "smb://host/share/a", p0)
}
