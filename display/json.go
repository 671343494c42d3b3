package display

import (
	"encoding/json"
	"os"
)

// CompactEnv switches MarshalJSON to single-line output, for log shippers
// that split on newlines.
const CompactEnv = "REGALSYNC_JSON_COMPACT"

// MarshalJSON marshals JSON pretty-printed unless CompactEnv is set
func MarshalJSON(v interface{}) ([]byte, error) {
	if os.Getenv(CompactEnv) != "" {
		return json.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}
