package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"

	"graph-cdc/internal/models"
)

// ErrChangeRejected is returned when the transform function rejects a change
// by returning null or undefined.
var ErrChangeRejected = errors.New("change rejected by transformer")

// Transformer runs an optional JavaScript hook over each captured change
// before it is published. The script must evaluate to a function, or define
// one named "transform", taking a JSON view of the change:
//
//	{op, element: {id, labels, properties, ...}, source: {lsn, table, ts_ns}}
//
// Returning null or undefined rejects the change; returning an object
// attaches it as the change's metadata.
type Transformer struct {
	script string
	logger *logrus.Logger
}

// NewTransformer loads and validates the script at path.
func NewTransformer(path string, logger *logrus.Logger) (*Transformer, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transform script: %w", err)
	}
	if err := validateScript(string(content)); err != nil {
		return nil, fmt.Errorf("invalid transform script: %w", err)
	}
	logger.Infof("Loaded transform script: %s", path)
	return &Transformer{script: string(content), logger: logger}, nil
}

func validateScript(script string) error {
	vm := goja.New()
	result, err := vm.RunString(script)
	if err != nil {
		return fmt.Errorf("failed to execute script: %w", err)
	}
	if _, ok := callableFrom(vm, result); !ok {
		return errors.New(`script must evaluate to a function or define a function named "transform"`)
	}
	return nil
}

// callableFrom resolves the transform function: the script's own result if
// it is a function, otherwise a top-level function named "transform".
func callableFrom(vm *goja.Runtime, result goja.Value) (goja.Callable, bool) {
	if result != nil && !goja.IsUndefined(result) && !goja.IsNull(result) {
		if fn, ok := goja.AssertFunction(result); ok {
			return fn, true
		}
	}
	named := vm.Get("transform")
	if named != nil && !goja.IsUndefined(named) && !goja.IsNull(named) {
		if fn, ok := goja.AssertFunction(named); ok {
			return fn, true
		}
	}
	return nil, false
}

// Apply runs the hook and returns the metadata to attach to the change, nil
// when the script supplies none, or ErrChangeRejected. A fresh runtime is
// created per call; goja.Runtime is not safe for concurrent use.
func (t *Transformer) Apply(op models.ChangeOp, element models.SourceElement, seq, sourceNs uint64) (*models.PropertyMap, error) {
	elementJSON, err := json.Marshal(element)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal element for transform: %w", err)
	}
	view, err := json.Marshal(map[string]interface{}{
		"op":      op.Tag(),
		"element": json.RawMessage(elementJSON),
		"source": map[string]interface{}{
			"lsn":   seq,
			"table": element.Table(),
			"ts_ns": sourceNs,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal change view: %w", err)
	}

	vm := goja.New()
	t.setupConsole(vm)

	result, err := vm.RunString(t.script)
	if err != nil {
		return nil, fmt.Errorf("failed to execute transform script: %w", err)
	}
	fn, ok := callableFrom(vm, result)
	if !ok {
		return nil, errors.New(`script must evaluate to a function or define a function named "transform"`)
	}

	if err := vm.Set("changeJSON", string(view)); err != nil {
		return nil, fmt.Errorf("failed to bind change view: %w", err)
	}
	change, err := vm.RunString("JSON.parse(changeJSON)")
	if err != nil {
		return nil, fmt.Errorf("failed to parse change view: %w", err)
	}

	out, err := fn(goja.Undefined(), change)
	if err != nil {
		return nil, fmt.Errorf("transform function error: %w", err)
	}
	if out == nil || goja.IsUndefined(out) || goja.IsNull(out) {
		return nil, ErrChangeRejected
	}

	outJSON, err := json.Marshal(out.Export())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transform result: %w", err)
	}
	var metadata models.PropertyMap
	if err := json.Unmarshal(outJSON, &metadata); err != nil {
		return nil, fmt.Errorf("transform result must be an object: %w", err)
	}
	if metadata.Len() == 0 {
		return nil, nil
	}
	return &metadata, nil
}

func (t *Transformer) setupConsole(vm *goja.Runtime) {
	console := vm.NewObject()
	console.Set("log", func(args ...interface{}) { t.logger.Info(args...) })
	console.Set("error", func(args ...interface{}) { t.logger.Error(args...) })
	vm.Set("console", console)
}
