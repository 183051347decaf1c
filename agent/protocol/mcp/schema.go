package mcp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// argumentValidator validates tool arguments against a tool's inputSchema.
type argumentValidator struct {
	schema *gojsonschema.Schema
}

func newArgumentValidator(inputSchema map[string]any) (*argumentValidator, error) {
	if len(inputSchema) == 0 {
		return &argumentValidator{}, nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(inputSchema))
	if err != nil {
		return nil, fmt.Errorf("invalid input schema: %w", err)
	}
	return &argumentValidator{schema: schema}, nil
}

// validate returns nil when args satisfy the schema. A nil args map is
// validated as an empty object.
func (v *argumentValidator) validate(args map[string]any) error {
	if v == nil || v.schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}
