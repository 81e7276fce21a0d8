package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaBase = "https://tmgbattle.ai/schemas/"

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemaOnce sync.Once
	schemaErr  error
	schemas    map[string]*jsonschema.Schema
)

var schemaFiles = map[string]string{
	TypeHello:   "hello.schema.json",
	TypeWelcome: "welcome.schema.json",
	TypeAct:     "act.schema.json",
	TypeEvent:   "event.schema.json",
	TypeError:   "error.schema.json",
}

func loadSchemas() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for _, name := range schemaFiles {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			schemaErr = err
			return
		}
		if err := c.AddResource(schemaBase+name, bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("add schema %s: %w", name, err)
			return
		}
	}
	out := make(map[string]*jsonschema.Schema, len(schemaFiles))
	for typ, name := range schemaFiles {
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			schemaErr = fmt.Errorf("compile schema %s: %w", name, err)
			return
		}
		out[typ] = s
	}
	schemas = out
}

// Validate checks a raw message against the schema registered for msgType.
func Validate(msgType string, raw []byte) error {
	schemaOnce.Do(loadSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	s, ok := schemas[msgType]
	if !ok {
		return fmt.Errorf("no schema for message type %q", msgType)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}

func ValidateAct(raw []byte) error { return Validate(TypeAct, raw) }
