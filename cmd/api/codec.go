package main

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content subtype of the Inbox service
// ("application/grpc+json"). Clients select it with
// grpc.CallContentSubtype(codecName).
const codecName = "json"

// jsonCodec carries the service messages as JSON, so the same structs
// travel over gRPC and WebSocket frames.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
