// Package schema validates persisted documents before they are decoded into
// domain types.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemasFS embed.FS

const (
	profileURL = "https://pal.local/schemas/profile.json"
	recordURL  = "https://pal.local/schemas/record.json"
)

var (
	profileSchema = mustCompile(profileURL, "schemas/profile.json")
	recordSchema  = mustCompile(recordURL, "schemas/record.json")
)

func mustCompile(url, file string) *jsonschema.Schema {
	raw, err := schemasFS.ReadFile(file)
	if err != nil {
		panic(fmt.Sprintf("schema: reading %s: %v", file, err))
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("schema: adding %s: %v", file, err))
	}
	s, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("schema: compiling %s: %v", file, err))
	}
	return s
}

// ValidateProfile checks a raw profile document. It fails on malformed JSON
// and on documents that are not a profile object.
func ValidateProfile(data []byte) error {
	v, err := decode(data)
	if err != nil {
		return err
	}
	return profileSchema.Validate(v)
}

// ValidateRecord checks one decoded conversation log entry, as produced by
// json.Unmarshal into an any.
func ValidateRecord(v any) error {
	return recordSchema.Validate(v)
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decoding JSON: trailing data")
	}
	return v, nil
}
