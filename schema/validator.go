// Package payloadschema validates raw extracted statement payloads against
// the embedded JSON Schema and converts them into raw records.
package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"statforge/internal/statement"
)

//go:embed raw_statement.schema.json
var rawStatementSchemaJSON string

// RawStatementPayload is one extracted statement as delivered by an
// extraction run.
type RawStatementPayload struct {
	PayloadVersion   string             `json:"payload_version"`
	ID               int64              `json:"id,omitempty"`
	InputUnitID      int64              `json:"input_unit_id"`
	SourceKind       string             `json:"source_kind"`
	ContentUnitID    int64              `json:"content_unit_id"`
	Extractor        string             `json:"extractor"`
	ExtractorVersion string             `json:"extractor_version"`
	RunID            int64              `json:"run_id"`
	Statement        statement.Content  `json:"statement"`
	Evidence         statement.Evidence `json:"evidence"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateRawStatementPayload validates one payload document and returns the
// decoded form.
func ValidateRawStatementPayload(payload json.RawMessage) (*RawStatementPayload, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var item RawStatementPayload
	if err := json.Unmarshal(normalized, &item); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&item); err != nil {
		return nil, err
	}

	return &item, nil
}

// Record converts a validated payload into a raw record.
func (p *RawStatementPayload) Record() *statement.RawRecord {
	if p == nil {
		return nil
	}
	return &statement.RawRecord{
		ID:       p.ID,
		Content:  p.Statement,
		Evidence: p.Evidence,
		Provenance: statement.Provenance{
			InputUnitID:      p.InputUnitID,
			SourceKind:       p.SourceKind,
			ContentUnitID:    p.ContentUnitID,
			Extractor:        p.Extractor,
			ExtractorVersion: p.ExtractorVersion,
			RunID:            p.RunID,
		},
	}
}

// ParseRecords validates a JSON array of payloads and returns the records in
// input order. Record ids default to the array position when absent.
func ParseRecords(doc json.RawMessage) ([]*statement.RawRecord, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(doc), &raws); err != nil {
		return nil, fmt.Errorf("decode payload array: %w", err)
	}

	records := make([]*statement.RawRecord, 0, len(raws))
	for i, raw := range raws {
		item, err := ValidateRawStatementPayload(raw)
		if err != nil {
			return nil, fmt.Errorf("payload %d: %w", i, err)
		}
		rec := item.Record()
		if rec.ID == 0 {
			rec.ID = int64(i + 1)
		}
		records = append(records, rec)
	}
	return records, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("raw_statement.schema.json", strings.NewReader(rawStatementSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("raw_statement.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(item *RawStatementPayload) error {
	if item == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(item.PayloadVersion) != "v1" {
		return fmt.Errorf("payload_version must be v1")
	}

	rec := item.Record()
	if err := rec.Provenance.Validate(); err != nil {
		return fmt.Errorf("invalid provenance: %w", err)
	}

	concrete := 0
	for _, agent := range item.Statement.Agents {
		if agent == nil {
			continue
		}
		if strings.TrimSpace(agent.Name) == "" {
			return fmt.Errorf("agent name must not be empty")
		}
		concrete++
	}
	if concrete == 0 {
		return fmt.Errorf("statement needs at least one concrete agent")
	}

	if item.Statement.Type.Unordered() {
		for _, agent := range item.Statement.Agents {
			if agent == nil {
				return fmt.Errorf("%s statements cannot have unspecified members", item.Statement.Type)
			}
		}
	}

	if item.Statement.Position != "" && item.Statement.Residue == "" {
		return fmt.Errorf("position requires a residue")
	}

	if strings.TrimSpace(item.Evidence.Text) == "" {
		return fmt.Errorf("evidence text must not be empty")
	}

	return nil
}
