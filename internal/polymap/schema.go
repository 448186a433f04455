package polymap

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed mappings.schema.json
var mappingsSchemaSource string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func mappingsSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("mappings.schema.json", mappingsSchemaSource)
	})
	return schema, schemaErr
}

// ValidateDocument проверяет YAML-документ маппингов по JSON-схеме
// до разбора в структуры: опечатки в ключах иначе молча игнорируются.
func ValidateDocument(data []byte) error {
	s, err := mappingsSchema()
	if err != nil {
		return fmt.Errorf("схема маппингов: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	// Валидатор ждёт значения в том виде, как их отдаёт encoding/json
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var normalized any
	if err := dec.Decode(&normalized); err != nil {
		return err
	}
	return s.Validate(normalized)
}
