package envelope

import (
	"encoding/json"
	"fmt"
)

// Marshal encodes an envelope to its JSON wire form.
func Marshal(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Parse decodes an envelope from its JSON wire form and validates the
// required fields. Frames without an id or channel are rejected so they can
// never poison the dedup window.
func Parse(data []byte) (Envelope, error) {
	var env Envelope

	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to parse envelope: %w", err)
	}

	if env.ID == "" {
		return Envelope{}, fmt.Errorf("envelope missing required field: id")
	}
	if env.Channel == "" {
		return Envelope{}, fmt.Errorf("envelope missing required field: channel")
	}

	return env, nil
}
