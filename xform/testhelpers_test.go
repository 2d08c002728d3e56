package xform

import "github.com/machinefabric/xformd/pluginapi"

func newTestRegistry(plugins ...*pluginapi.Plugin) *pluginapi.MemRegistry {
	reg := pluginapi.NewMemRegistry()
	for _, p := range plugins {
		if err := reg.Register(p); err != nil {
			panic(err)
		}
	}
	return reg
}
