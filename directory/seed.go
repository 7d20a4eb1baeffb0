package directory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// SeedEntry is one variable in a seed file
type SeedEntry struct {
	Var
	Value string `json:"value"`
}

// LoadSeed reads a JSON (comments allowed) array of SeedEntry and defines
// each entry in m, in file order.
func LoadSeed(m *Memory, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed %s: %w", path, err)
	}

	var entries []SeedEntry
	if err := json.Unmarshal(jsonc.ToJSON(data), &entries); err != nil {
		return 0, fmt.Errorf("parse seed %s: %w", path, err)
	}

	for i, e := range entries {
		if err := m.Define(e.Var, e.Value); err != nil {
			return i, fmt.Errorf("seed entry %d: %w", i, err)
		}
	}
	return len(entries), nil
}
