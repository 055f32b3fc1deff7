package packets

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const messageSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "oneOf": [
    {
      "type": "object",
      "required": ["type", "x", "y", "LOD", "heightmap", "textureSeed", "noiseSeed", "checksum"],
      "properties": {
        "type": {"const": "chunkData"},
        "x": {"type": "integer", "minimum": 0},
        "y": {"type": "integer", "minimum": 0},
        "LOD": {"type": "integer", "minimum": 0, "maximum": 16},
        "heightmap": {"type": "string", "contentEncoding": "base64", "minLength": 4},
        "textureSeed": {"type": "integer"},
        "noiseSeed": {"type": "integer"},
        "checksum": {"type": "integer", "minimum": 0, "maximum": 4294967295}
      }
    },
    {
      "type": "object",
      "required": ["type", "x", "y"],
      "properties": {
        "type": {"const": "chunkUnload"},
        "x": {"type": "integer", "minimum": 0},
        "y": {"type": "integer", "minimum": 0}
      }
    }
  ]
}`

var messageSchema = jsonschema.MustCompileString("chunk_message.schema.json", messageSchemaJSON)
