package transport

import "encoding/json"

// jsonCodec implements google.golang.org/grpc/encoding.Codec by marshaling
// messages as JSON. The AgentOrchestrator service has no .proto-generated
// message set (spec §4.1's gRPC front door is additive to the canonical
// HTTP surface, not the primary one), so there is nothing for the default
// protobuf codec to encode; forcing this codec server-wide via
// grpc.ForceServerCodec sidesteps the content-subtype negotiation a
// real multi-codec deployment would need.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return "json" }
