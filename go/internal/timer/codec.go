package timer

import (
	"encoding/json"
	"fmt"
)

// JSONCodec serializes plain Go structs for Connect. It replaces the protojson codec
// registered under the same name, so clients speak ordinary application/json.
type JSONCodec struct{}

// Name implements connect.Codec
func (JSONCodec) Name() string {
	return "json"
}

// Marshal implements connect.Codec
func (JSONCodec) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", msg, err)
	}
	return data, nil
}

// Unmarshal implements connect.Codec. An empty body decodes to the zero message.
func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("failed to unmarshal into %T: %w", msg, err)
	}
	return nil
}
