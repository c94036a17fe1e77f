package engine

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// gobCodec lets the Raft peer-to-peer service move raft.VoteRequest/
// AppendEntries/etc. frames over grpc without protoc-generated
// marshal/unmarshal code: protoc isn't invokable here, and the teacher's
// own generated kvstore/proto package was never retrieved into this
// module. grpc.Codec only requires Marshal/Unmarshal/Name, so gob (already
// reached for by raft/persist.go for on-disk records) covers the wire
// format just as well as protobuf would for a private peer protocol.
type gobCodec struct{}

func (gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("engine: gob marshal: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("engine: gob unmarshal: %w", err)
	}
	return nil
}

func (gobCodec) Name() string { return "gob" }
