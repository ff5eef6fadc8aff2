package ruleext

import "encoding/json"

// decodeMetadata turns PolicyContext.Metadata (opaque JSON) into a plain
// value CEL can evaluate against. Empty/absent metadata decodes to an
// empty map so condition expressions can reference metadata.foo without a
// presence check blowing up on a context that carries none.
func decodeMetadata(raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
