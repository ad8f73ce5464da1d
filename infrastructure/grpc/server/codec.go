package server

import "fmt"

// Frame carries the JSON bytes of one event, the same bytes the WebSocket writes.
type Frame struct {
	Data []byte
}

// Codec passes frames through untouched: the stream has no protobuf schema,
// its messages are the {type,data} JSON envelopes.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	frame, ok := v.(*Frame)
	if !ok {
		return nil, fmt.Errorf("codec: unexpected message type %T", v)
	}
	return frame.Data, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	frame, ok := v.(*Frame)
	if !ok {
		return fmt.Errorf("codec: unexpected message type %T", v)
	}
	frame.Data = append(frame.Data[:0], data...)
	return nil
}

func (Codec) Name() string { return "json" }
