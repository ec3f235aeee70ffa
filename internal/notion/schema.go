package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// PropertySchema describes one database column.
type PropertySchema struct {
	ID      string
	Name    string
	Type    string
	Options []string
}

// Enumerated reports whether values must be chosen from Options.
func (p PropertySchema) Enumerated() bool {
	switch p.Type {
	case TypeStatus, TypeSelect, TypeMultiSelect:
		return true
	}
	return false
}

// computedTypes are never offered to users for input.
var computedTypes = map[string]bool{
	TypeRollup:         true,
	TypeCreatedBy:      true,
	TypeCreatedTime:    true,
	TypeLastEditedBy:   true,
	TypeLastEditedTime: true,
	TypeFormula:        true,
}

type optionList struct {
	Options []SelectOption `json:"options"`
}

type rawPropertySchema struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Status      *optionList `json:"status"`
	Select      *optionList `json:"select"`
	MultiSelect *optionList `json:"multi_select"`
}

type rawDatabase struct {
	ID         string          `json:"id"`
	Properties json.RawMessage `json:"properties"`
}

// GetDatabaseProperties returns the database schema in the order Notion
// lists it.
func (c *Client) GetDatabaseProperties(ctx context.Context, databaseURL string) ([]PropertySchema, error) {
	databaseID, err := ExtractDatabaseID(databaseURL)
	if err != nil {
		return nil, err
	}

	var db rawDatabase
	if err := c.do(ctx, http.MethodGet, "/v1/databases/"+databaseID, nil, &db); err != nil {
		return nil, err
	}

	schema, err := decodeSchema(db.Properties)
	if err != nil {
		return nil, &APIError{Message: "malformed database schema: " + err.Error()}
	}
	return schema, nil
}

// GetPropertiesForInteraction returns the properties users can fill in or
// filter on: computed types removed, the title property first.
func (c *Client) GetPropertiesForInteraction(ctx context.Context, databaseURL string) ([]PropertySchema, error) {
	schema, err := c.GetDatabaseProperties(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return InteractiveProperties(schema), nil
}

// InteractiveProperties filters and orders a raw schema for user prompts.
func InteractiveProperties(schema []PropertySchema) []PropertySchema {
	var title []PropertySchema
	rest := make([]PropertySchema, 0, len(schema))
	for _, prop := range schema {
		if computedTypes[prop.Type] {
			continue
		}
		if prop.Type == TypeTitle {
			title = append(title, prop)
			continue
		}
		rest = append(rest, prop)
	}
	return append(title, rest...)
}

// FindProperty looks a property up by name.
func FindProperty(schema []PropertySchema, name string) (PropertySchema, bool) {
	for _, prop := range schema {
		if prop.Name == name {
			return prop, true
		}
	}
	return PropertySchema{}, false
}

// PropertiesOfType returns the properties whose type is one of types.
func PropertiesOfType(schema []PropertySchema, types ...string) []PropertySchema {
	var out []PropertySchema
	for _, prop := range schema {
		for _, t := range types {
			if prop.Type == t {
				out = append(out, prop)
				break
			}
		}
	}
	return out
}

func decodeSchema(raw json.RawMessage) ([]PropertySchema, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	keys, err := objectKeys(raw)
	if err != nil {
		return nil, err
	}

	var props map[string]rawPropertySchema
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, err
	}

	schema := make([]PropertySchema, 0, len(keys))
	for _, key := range keys {
		rp := props[key]
		prop := PropertySchema{ID: rp.ID, Name: key, Type: rp.Type}
		if rp.Name != "" {
			prop.Name = rp.Name
		}

		var opts *optionList
		switch rp.Type {
		case TypeStatus:
			opts = rp.Status
		case TypeSelect:
			opts = rp.Select
		case TypeMultiSelect:
			opts = rp.MultiSelect
		}
		if opts != nil {
			for _, o := range opts.Options {
				prop.Options = append(prop.Options, o.Name)
			}
		}
		schema = append(schema, prop)
	}
	return schema, nil
}

// objectKeys returns the top-level keys of a JSON object in document order.
func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object")
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key")
		}
		keys = append(keys, key)

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
