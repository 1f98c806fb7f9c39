package messaging

import (
	"encoding/json"
	"fmt"
)

// Event bodies are UTF-8 JSON so consumers can pick out the fields they know
// and ignore the rest.

// Validator lets each event variant declare which fields are required on the
// wire.
type Validator interface {
	Validate() error
}

// DecodeError marks a malformed or incomplete payload. Consumers treat it as
// a permanent failure: the delivery is acked and logged, never requeued,
// because redelivery cannot fix a bad body.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode event: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func Encode(event any) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

func Decode(data []byte, event Validator) error {
	if err := json.Unmarshal(data, event); err != nil {
		return &DecodeError{Err: err}
	}
	if err := event.Validate(); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}
