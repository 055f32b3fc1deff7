// Package packets defines the chunk sync messages exchanged with the world
// server.
package packets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
)

// Message types
const (
	TypeChunkData   = "chunkData"   // Server -> client: build a chunk from this payload
	TypeChunkUnload = "chunkUnload" // Server -> client: drop a chunk
)

// Decode errors.
var (
	ErrUnknownType = errors.New("unknown message type")
	ErrSchema      = errors.New("message does not match schema")
	ErrChecksum    = errors.New("heightmap checksum mismatch")
)

// Message is one of ChunkData or ChunkUnload.
type Message interface {
	MessageType() string
	isMessage()
}

// ChunkData carries a chunk's raw heightmap patch.
type ChunkData struct {
	X           int
	Y           int
	LOD         int
	Heightmap   []byte // Raw little-endian uint16 patch
	TextureSeed int64
	NoiseSeed   int64
	Checksum    uint32 // CRC-32 (IEEE) of Heightmap
}

// ChunkUnload asks the client to drop a chunk.
type ChunkUnload struct {
	X int
	Y int
}

func (ChunkData) MessageType() string   { return TypeChunkData }
func (ChunkUnload) MessageType() string { return TypeChunkUnload }
func (ChunkData) isMessage()            {}
func (ChunkUnload) isMessage()          {}

// NewChunkData builds a ChunkData with its checksum filled in.
func NewChunkData(x, y, lod int, heightmap []byte, textureSeed, noiseSeed int64) ChunkData {
	return ChunkData{
		X:           x,
		Y:           y,
		LOD:         lod,
		Heightmap:   heightmap,
		TextureSeed: textureSeed,
		NoiseSeed:   noiseSeed,
		Checksum:    Checksum(heightmap),
	}
}

// Checksum returns the CRC-32 (IEEE) of a heightmap payload.
func Checksum(heightmap []byte) uint32 {
	return crc32.ChecksumIEEE(heightmap)
}

// Verify checks the payload against its checksum.
func (m ChunkData) Verify() error {
	if got := Checksum(m.Heightmap); got != m.Checksum {
		return fmt.Errorf("%w: chunk (%d,%d) got %08x want %08x", ErrChecksum, m.X, m.Y, got, m.Checksum)
	}
	return nil
}

// Wire layouts. []byte fields marshal as base64.
type chunkDataWire struct {
	Type        string `json:"type"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	LOD         int    `json:"LOD"`
	Heightmap   []byte `json:"heightmap"`
	TextureSeed int64  `json:"textureSeed"`
	NoiseSeed   int64  `json:"noiseSeed"`
	Checksum    uint32 `json:"checksum"`
}

type chunkUnloadWire struct {
	Type string `json:"type"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

// Encode serializes a message to JSON.
func Encode(m Message) ([]byte, error) {
	switch msg := m.(type) {
	case ChunkData:
		return json.Marshal(chunkDataWire{
			Type:        TypeChunkData,
			X:           msg.X,
			Y:           msg.Y,
			LOD:         msg.LOD,
			Heightmap:   msg.Heightmap,
			TextureSeed: msg.TextureSeed,
			NoiseSeed:   msg.NoiseSeed,
			Checksum:    msg.Checksum,
		})
	case ChunkUnload:
		return json.Marshal(chunkUnloadWire{Type: TypeChunkUnload, X: msg.X, Y: msg.Y})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
}

// Decode validates and parses an inbound message. ChunkData checksums are
// verified.
func Decode(data []byte) (Message, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}

	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, err
	}

	switch base.Type {
	case TypeChunkData:
		var w chunkDataWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", base.Type, err)
		}
		msg := ChunkData{
			X:           w.X,
			Y:           w.Y,
			LOD:         w.LOD,
			Heightmap:   w.Heightmap,
			TextureSeed: w.TextureSeed,
			NoiseSeed:   w.NoiseSeed,
			Checksum:    w.Checksum,
		}
		if err := msg.Verify(); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeChunkUnload:
		var w chunkUnloadWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", base.Type, err)
		}
		return ChunkUnload{X: w.X, Y: w.Y}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, base.Type)
	}
}

// Validate checks raw JSON against the message schema.
func Validate(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := messageSchema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
