package core

import (
	"os"

	"gopkg.in/ini.v1"
)

// Settings are the operator-editable knobs, read from an ini file.
type Settings struct {
	ExcludeNodes []int // root nodes the unconfigured-roots check skips
}

// LoadSettings reads an ini settings file. A missing file yields defaults.
func LoadSettings(path string) (Settings, error) {

	var settings Settings

	cfg, err := ini.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, err
	}

	var section = cfg.Section("")
	if key := section.Key("exclude-nodes"); key.String() != "" {
		settings.ExcludeNodes = key.Ints(",")
	}

	return settings, nil
}

// ExcludedNodeSet returns ExcludeNodes as a lookup set.
func (s Settings) ExcludedNodeSet() map[int]bool {
	var set = make(map[int]bool, len(s.ExcludeNodes))
	for _, id := range s.ExcludeNodes {
		set[id] = true
	}
	return set
}
