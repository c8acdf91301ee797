package selector

import "encoding/json"

// decodeInput unmarshals a tool call's raw JSON input into dst.
func decodeInput(raw json.RawMessage, dst interface{}) error {
	return json.Unmarshal(raw, dst)
}
