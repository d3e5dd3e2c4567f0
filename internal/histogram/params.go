package histogram

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Params configures the histogram transform.
type Params struct {
	Column   string `json:"column"`
	NBuckets int    `json:"n_buckets"`
	Title    string `json:"title"`
}

// MigrateParams upgrades a stored parameter object to the current version.
// v0 carried {column, n_buckets}; v1 added title.
func MigrateParams(params map[string]any) map[string]any {
	if _, ok := params["title"]; ok {
		return params
	}
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["title"] = ""
	return out
}

// DecodeParams parses a raw parameter object, applying migrations.
func DecodeParams(raw []byte) (Params, error) {
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return Params{}, fmt.Errorf("decode histogram params: %w", err)
	}
	migrated, err := json.Marshal(MigrateParams(asMap))
	if err != nil {
		return Params{}, fmt.Errorf("encode migrated params: %w", err)
	}
	var p Params
	if err := json.Unmarshal(migrated, &p); err != nil {
		return Params{}, fmt.Errorf("decode histogram params: %w", err)
	}
	return p, nil
}
