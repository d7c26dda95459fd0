package main

import (
	"encoding/json"
	"log"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/matsen/paperchat/internal/config"
	"github.com/matsen/paperchat/internal/rag"
)

func writeSchema(schema *jsonschema.Schema, path string) {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("Error marshaling schema: %v", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}
	log.Printf("Successfully generated schema at %s", path)
}

func main() {
	// config.yml is YAML, so field names come from the yaml tags
	configReflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
	}
	configSchema := configReflector.Reflect(&config.Config{})
	configSchema.Title = "paperchat configuration"
	configSchema.Description = "Schema for .paperchat/config.yml. Every field is optional and defaults are applied on load."
	configSchema.Required = nil
	writeSchema(configSchema, "config.schema.json")

	exportReflector := &jsonschema.Reflector{
		ExpandedStruct: true,
	}
	exportSchema := exportReflector.Reflect(&rag.ExportRecord{})
	exportSchema.Title = "paperchat conversation export"
	exportSchema.Description = "Schema for files written by /export and POST /api/chat/export."
	writeSchema(exportSchema, "export.schema.json")
}
