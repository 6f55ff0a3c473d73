// Package wire encodes the messages that cross the network boundary:
// ServerMessage (the server's Snapshot/Delta broadcast) and
// NetworkClientState (the client's ack report). Both use
// encoding/gob, the same codec the teacher already reaches for to
// round-trip structural values in pkg/network/delta.go's
// DeltaDecoder.deepCopyValue. Payloads above a configurable threshold
// are optionally zstd-compressed, grounded on the pack's
// klauspost/compress/zstd frame reader usage.
package wire

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/opd-ai/replicate/pkg/replication"
)

// compressedMagic prefixes a zstd-compressed payload so the decode
// side can tell it apart from a raw gob stream without a side-channel
// flag. gob streams never begin with this byte sequence.
var compressedMagic = []byte{0x5a, 0x53, 0x54, 0x44} // "ZSTD"

// CompressIfLarger zstd-compresses payload when it is at least
// thresholdBytes long and compression actually shrinks it; otherwise
// it returns payload unchanged. A thresholdBytes of 0 or less disables
// compression entirely.
func CompressIfLarger(payload []byte, thresholdBytes int) ([]byte, error) {
	if thresholdBytes <= 0 || len(payload) < thresholdBytes {
		return payload, nil
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("wire: new zstd encoder: %w", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(payload, make([]byte, 0, len(compressedMagic)+len(payload)/2))
	if len(compressed) >= len(payload) {
		return payload, nil
	}
	return append(append([]byte{}, compressedMagic...), compressed...), nil
}

// decompressIfNeeded reverses CompressIfLarger, recognizing the magic
// prefix. Payloads without it are returned unchanged.
func decompressIfNeeded(data []byte) ([]byte, error) {
	if len(data) < len(compressedMagic) || !bytes.Equal(data[:len(compressedMagic)], compressedMagic) {
		return data, nil
	}
	dec, err := zstd.NewReader(bytes.NewReader(data[len(compressedMagic):]))
	if err != nil {
		return nil, fmt.Errorf("wire: new zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("wire: zstd decompress: %w", err)
	}
	return out, nil
}

// ServerMessage is the tagged union a client receives: exactly one of
// Snapshot or Delta is set. gob round-trips nil pointer fields as
// absent, so no discriminant tag is needed beyond the struct shape
// itself.
type ServerMessage struct {
	Snapshot *replication.WorldSnapshot
	Delta    *replication.WorldDelta
}

// Kind reports which variant msg holds.
func (m ServerMessage) Kind() Kind {
	switch {
	case m.Snapshot != nil:
		return KindSnapshot
	case m.Delta != nil:
		return KindDelta
	default:
		return KindNone
	}
}

// Kind enumerates ServerMessage's variants.
type Kind int

const (
	KindNone Kind = iota
	KindSnapshot
	KindDelta
)

// NetworkClientState is what a client reports back to the server:
// its last-received frame (the ack) and an opaque application-state
// payload (e.g. input commands), encoded by the caller.
type NetworkClientState struct {
	Ack   uint32
	State []byte
}

// EncodeServerMessage gob-encodes msg for transmission.
func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, fmt.Errorf("wire: encode ServerMessage: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeServerMessage gob-decodes a datagram payload into a
// ServerMessage. A malformed payload is returned as an error; callers
// on the receive path should log and drop rather than propagate, per
// spec.md §4.6.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	data, err := decompressIfNeeded(data)
	if err != nil {
		return ServerMessage{}, err
	}
	var msg ServerMessage
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&msg); err != nil {
		return ServerMessage{}, fmt.Errorf("wire: decode ServerMessage: %w", err)
	}
	return msg, nil
}

// EncodeServerMessageCompressed encodes msg and, when thresholdBytes
// is positive and the encoded form is at least that long, compresses
// it with CompressIfLarger. DecodeServerMessage transparently handles
// both forms.
func EncodeServerMessageCompressed(msg ServerMessage, thresholdBytes int) ([]byte, error) {
	payload, err := EncodeServerMessage(msg)
	if err != nil {
		return nil, err
	}
	return CompressIfLarger(payload, thresholdBytes)
}

// EncodeClientState gob-encodes a NetworkClientState for transmission.
func EncodeClientState(state NetworkClientState) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, fmt.Errorf("wire: encode NetworkClientState: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeClientState gob-decodes a received client-ack datagram.
func DecodeClientState(data []byte) (NetworkClientState, error) {
	var state NetworkClientState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return NetworkClientState{}, fmt.Errorf("wire: decode NetworkClientState: %w", err)
	}
	return state, nil
}
