package state

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Blob names of the three persisted tables.
const (
	CursorBlob  = "scan_state.json"
	CatalogBlob = "catalog.json"
	LedgerBlob  = "completed.json"
)

// tableVersion is written into the catalog and ledger blobs.
const tableVersion = 1

const cursorSchemaJSON = `{
  "type": "object",
  "required": ["last_scan"],
  "properties": {
    "last_scan": {"type": "string"},
    "mode": {"enum": ["", "backlog", "incremental"]}
  }
}`

const catalogSchemaJSON = `{
  "type": "object",
  "required": ["version", "items"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["identity", "full_path", "mod_time", "added_time"],
        "properties": {
          "identity": {"type": "string", "minLength": 1},
          "full_path": {"type": "string", "minLength": 1},
          "mod_time": {"type": "string"},
          "added_time": {"type": "string"}
        }
      }
    }
  }
}`

const ledgerSchemaJSON = `{
  "type": "object",
  "required": ["version", "records"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "records": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["identity", "completed_time"],
        "properties": {
          "identity": {"type": "string", "minLength": 1},
          "full_path": {"type": "string"},
          "completed_time": {"type": "string"}
        }
      }
    }
  }
}`

var (
	cursorSchema  = jsonschema.MustCompileString("scan_state.schema.json", cursorSchemaJSON)
	catalogSchema = jsonschema.MustCompileString("catalog.schema.json", catalogSchemaJSON)
	ledgerSchema  = jsonschema.MustCompileString("completed.schema.json", ledgerSchemaJSON)
)

// decodeValidated checks data against schema before decoding it into v.
func decodeValidated(schema *jsonschema.Schema, data []byte, v any) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
