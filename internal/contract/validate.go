package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/photon-decode/internal/common"
)

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func compileAll() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		defs := schemas()
		for name, def := range defs {
			b, err := json.Marshal(def)
			if err != nil {
				compileErr = fmt.Errorf("marshal schema %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
				compileErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
		}
		out := make(map[string]*jsonschema.Schema, len(defs))
		for name := range defs {
			s, err := compiler.Compile(name)
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			out[name] = s
		}
		compiled = out
	})
	return compiled, compileErr
}

// Validate checks an encoded response body against the named schema.
// A body that does not match wraps common.ErrValidation.
func Validate(name string, data []byte) error {
	all, err := compileAll()
	if err != nil {
		return err
	}
	schema, ok := all[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return common.WrapError(err, "unmarshal data")
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: json does not match schema %s: %w", common.ErrValidation, name, err)
	}
	return nil
}
