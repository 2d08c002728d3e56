// Command xformd-browse drives xform.ChainSetup and xform.Browse against a
// real filesystem, wiring a minimal "file" source/browse plugin into an
// in-memory registry and media library.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/machinefabric/xformd/medialib"
	"github.com/machinefabric/xformd/pluginapi"
	"github.com/machinefabric/xformd/streamtype"
	"github.com/machinefabric/xformd/value"
	"github.com/machinefabric/xformd/xform"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s file:///some/dir\n", os.Args[0])
		os.Exit(1)
	}
	url := os.Args[1]

	logger := slog.Default()
	registry := pluginapi.NewMemRegistry()
	if err := registry.Register(fileSourcePlugin()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register file plugin: %v\n", err)
		os.Exit(1)
	}

	entries, err := xform.Browse(registry, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "browse failed: %v\n", err)
		os.Exit(1)
	}

	for _, e := range entries {
		path, _ := e["path"].AsString()
		isdir, _ := e["isdir"].AsInt32()
		kind := "file"
		if isdir == 1 {
			kind = "dir"
		}
		fmt.Printf("%-4s %s\n", kind, path)
	}

	lib := medialib.NewMemLibrary()
	last, err := xform.ChainSetup(registry, lib, logger, "file", 0, url, []*streamtype.StreamType{
		streamtype.New(streamtype.Str(streamtype.MIMETYPE, "inode/directory")),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "chain setup failed: %v\n", err)
		os.Exit(1)
	}
	logger.Info("chain ready", "chain", xform.ChainName(last))
}

// fileSourcePlugin is a minimal source that lists a local directory. It
// accepts nothing (sources are never auto-matched) and advertises
// inode/directory as its out_type.
func fileSourcePlugin() *pluginapi.Plugin {
	return &pluginapi.Plugin{
		ShortName: "file",
		Methods: pluginapi.Methods{
			Init: func(s pluginapi.Stage) bool {
				s.SetOutType(streamtype.New(streamtype.Str(streamtype.MIMETYPE, "inode/directory")))
				return true
			},
			Read: func(s pluginapi.Stage, buf []byte) (int, error) { return 0, nil },
			HasBrowse: true,
			Browse: func(s pluginapi.Stage, url string) (bool, error) {
				dirPath := strings.TrimPrefix(url, "file://")
				entries, err := os.ReadDir(dirPath)
				if err != nil {
					return false, err
				}
				for _, e := range entries {
					props := map[string]value.Value{}
					if e.IsDir() {
						props["isdir"] = value.Int32(1)
					}
					if err := s.BrowseAddEntry(e.Name(), props); err != nil {
						return false, err
					}
				}
				return true, nil
			},
		},
	}
}
