package edits

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ivlev/democlip/internal/model"
)

//go:embed operation.schema.json
var operationSchema string

// Validator checks raw operation documents against the operation schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(operationSchema))
	if err != nil {
		return nil, fmt.Errorf("invalid operation schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Parse validates a JSON operation and decodes it.
func (v *Validator) Parse(data []byte) (model.Operation, error) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return model.Operation{}, fmt.Errorf("%w: %v", model.ErrInvalidOperation, err)
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return model.Operation{}, fmt.Errorf("%w: %s", model.ErrInvalidOperation, strings.Join(errs, "; "))
	}

	var op model.Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return model.Operation{}, fmt.Errorf("%w: %v", model.ErrInvalidOperation, err)
	}
	if err := op.Validate(); err != nil {
		return model.Operation{}, err
	}
	return op, nil
}

// Check re-validates an operation built in Go.
func (v *Validator) Check(op model.Operation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidOperation, err)
	}
	_, err = v.Parse(data)
	return err
}
