package packets

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestChunkDataRoundTrip(t *testing.T) {
	payload := []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x80, 0x34, 0x12}
	in := NewChunkData(72, 36, 1, payload, 11, 22)

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out, ok := msg.(ChunkData)
	if !ok {
		t.Fatalf("expected ChunkData, got %T", msg)
	}
	if out.X != 72 || out.Y != 36 || out.LOD != 1 || out.TextureSeed != 11 || out.NoiseSeed != 22 {
		t.Errorf("fields mismatch: %+v", out)
	}
	if !bytes.Equal(out.Heightmap, payload) {
		t.Errorf("heightmap mismatch")
	}
}

func TestWireFieldNames(t *testing.T) {
	data, err := Encode(NewChunkData(1, 2, 0, []byte{1, 2, 3, 4}, 0, 0))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"type", "x", "y", "LOD", "heightmap", "textureSeed", "noiseSeed", "checksum"} {
		if _, ok := raw[k]; !ok {
			t.Errorf("missing field %q", k)
		}
	}
	if raw["type"] != TypeChunkData {
		t.Errorf("type = %v", raw["type"])
	}
	if raw["heightmap"] != "AQIDBA==" {
		t.Errorf("heightmap not base64: %v", raw["heightmap"])
	}
}

func TestChunkUnloadRoundTrip(t *testing.T) {
	data, err := Encode(ChunkUnload{X: 3, Y: 4})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if u, ok := msg.(ChunkUnload); !ok || u.X != 3 || u.Y != 4 {
		t.Errorf("got %#v", msg)
	}
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	m := NewChunkData(1, 1, 0, []byte{9, 9, 9, 9}, 0, 0)
	m.Checksum++
	data, _ := Encode(m)
	if _, err := Decode(data); !errors.Is(err, ErrChecksum) {
		t.Errorf("expected ErrChecksum, got %v", err)
	}
}

func TestDecodeSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{`},
		{"unknown type", `{"type":"chunkDelete","x":1,"y":1}`},
		{"missing field", `{"type":"chunkData","x":1,"y":1,"LOD":0,"heightmap":"AAAA","textureSeed":0,"noiseSeed":0}`},
		{"negative coordinate", `{"type":"chunkUnload","x":-1,"y":1}`},
		{"fractional coordinate", `{"type":"chunkUnload","x":1.5,"y":1}`},
		{"string coordinate", `{"type":"chunkUnload","x":"1","y":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.json))
			if !errors.Is(err, ErrSchema) {
				t.Errorf("expected ErrSchema, got %v", err)
			}
		})
	}
}

func TestEncodeUnknownMessage(t *testing.T) {
	if _, err := Encode(nil); err == nil || !strings.Contains(err.Error(), "unknown") {
		t.Errorf("expected unknown type error, got %v", err)
	}
}
