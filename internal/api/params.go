package api

import (
	"bytes"
	"encoding/json"

	"github.com/branchwise/branchwise/internal/content"
)

// decodeParams unmarshals named params into dst
func decodeParams(params json.RawMessage, dst interface{}) error {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return content.Invalid("params", "required")
	}
	if trimmed[0] != '{' {
		return content.Invalid("params", "must be an object")
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return content.Invalid("params", err.Error())
	}
	return nil
}

// depthOrDefault resolves an optional max_depth
func depthOrDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
