package store

import (
	"fmt"

	"github.com/roach88/kdl/internal/ir"
)

// marshalParams serializes a parameter list to canonical JSON.
// A nil list is stored as an empty array.
func marshalParams(params []ir.Value) (string, error) {
	if params == nil {
		params = []ir.Value{}
	}
	data, err := ir.MarshalCanonical(params)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	return string(data), nil
}

// marshalVars serializes a variable snapshot to canonical JSON.
func marshalVars(vars map[string]ir.Value) (string, error) {
	if vars == nil {
		vars = map[string]ir.Value{}
	}
	data, err := ir.MarshalCanonical(vars)
	if err != nil {
		return "", fmt.Errorf("marshal vars: %w", err)
	}
	return string(data), nil
}

func unmarshalParams(data string) ([]ir.Value, error) {
	params, err := ir.UnmarshalValues([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return params, nil
}

func unmarshalVars(data string) (map[string]ir.Value, error) {
	vars, err := ir.UnmarshalVars([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal vars: %w", err)
	}
	return vars, nil
}
