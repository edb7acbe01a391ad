package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "chunkloader-config.schema.json"

const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "definitions": {
    "duration": {"type": ["string", "integer", "number", "null"]}
  },
  "properties": {
    "server": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "id": {"type": "string"},
        "description": {"type": "string"},
        "tickRate": {"$ref": "#/definitions/duration"},
        "statsInterval": {"$ref": "#/definitions/duration"}
      }
    },
    "tracking": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "radius": {"type": "integer"},
        "unloadRadius": {"type": "integer"},
        "preloadRadius": {"type": "integer"}
      }
    },
    "terrain": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "seed": {"type": "integer"},
        "frequency": {"type": "number"},
        "amplitude": {"type": "number"},
        "octaves": {"type": "integer"},
        "persistence": {"type": "number"},
        "lacunarity": {"type": "number"},
        "samples": {"type": "integer"},
        "workers": {"type": "integer"},
        "preloadPerSecond": {"type": "number"},
        "preloadBurst": {"type": "integer"}
      }
    },
    "storage": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "driver": {"enum": ["memory", "sqlite"]},
        "path": {"type": "string"}
      }
    },
    "debug": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "listen": {"type": "string"}
      }
    },
    "simulation": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "observers": {"type": "integer"},
        "speed": {"type": "number"},
        "arenaChunks": {"type": "integer"},
        "seed": {"type": "integer"}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(configSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// validateSchema checks a decoded document. YAML documents are normalised
// through JSON first so both encodings validate identically.
func validateSchema(doc any) error {
	if doc == nil {
		return nil
	}
	schema, err := loadSchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalise document: %w", err)
	}
	var normalised any
	if err := json.Unmarshal(raw, &normalised); err != nil {
		return fmt.Errorf("normalise document: %w", err)
	}
	return schema.Validate(normalised)
}
