package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"komoridev/deepshack/internal/api"
	"komoridev/deepshack/internal/core"
)

// UnknownCapabilityError means the model asked for a capability nobody
// registered.
type UnknownCapabilityError struct {
	Name string
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("capability %q is not registered", e.Name)
}

// MissingParamError means a required parameter was absent from the model's
// arguments.
type MissingParamError struct {
	Capability string
	Param      string
}

func (e *MissingParamError) Error() string {
	return fmt.Sprintf("%s: missing required parameter %q", e.Capability, e.Param)
}

// CoercionError means an argument could not be converted to its declared
// type.
type CoercionError struct {
	Param string
	Want  ParamType
	Got   any
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("parameter %q: cannot coerce %v (%T) to %s", e.Param, e.Got, e.Got, e.Want)
}

// ExecError wraps a failure raised by the capability itself.
type ExecError struct {
	Capability string
	Err        error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("capability %s failed: %v", e.Capability, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// ExecuteCall resolves a model-issued tool call against the registry,
// validates and coerces its JSON arguments against the declared schema, and
// runs the capability.
func (r *Registry) ExecuteCall(ctx context.Context, call api.ToolCall) (string, error) {
	name := call.Function.Name
	capability, ok := r.Get(name)
	if !ok {
		return "", &UnknownCapabilityError{Name: name}
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return "", &ExecError{Capability: name, Err: fmt.Errorf("arguments are not a JSON object: %w", err)}
	}

	schema := capability.Schema()
	coerced := make(map[string]any, len(schema.Params))
	for paramName, param := range schema.Params {
		value, present := args[paramName]
		if !present {
			if param.Required {
				return "", &MissingParamError{Capability: name, Param: paramName}
			}
			continue
		}
		converted, err := coerce(paramName, value, param.Type)
		if err != nil {
			return "", err
		}
		coerced[paramName] = converted
	}

	logger := core.GetLogger().With("capability", name)
	logger.Debugw("executing capability", "args", coerced)

	result, err := invoke(ctx, capability, coerced)
	if err != nil {
		return "", &ExecError{Capability: name, Err: err}
	}
	return result, nil
}

// invoke runs the capability, converting a panic into an error so one
// misbehaving capability cannot take the session down.
func invoke(ctx context.Context, c Capability, args map[string]any) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.Execute(ctx, args)
}

func coerce(name string, value any, want ParamType) (any, error) {
	switch want {
	case TypeAny:
		return value, nil

	case TypeString:
		if s, ok := value.(string); ok {
			return s, nil
		}

	case TypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(v) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}

	case TypeInteger:
		switch v := value.(type) {
		case float64:
			if v == float64(int64(v)) {
				return int(v), nil
			}
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return n, nil
			}
		}

	case TypeNumber:
		switch v := value.(type) {
		case float64:
			return v, nil
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, nil
			}
		}

	case TypeArray:
		if a, ok := value.([]any); ok {
			return a, nil
		}

	case TypeObject:
		if o, ok := value.(map[string]any); ok {
			return o, nil
		}
	}

	return nil, &CoercionError{Param: name, Want: want, Got: value}
}
