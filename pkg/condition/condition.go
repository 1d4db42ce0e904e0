// Package condition compiles and evaluates step conditions such as
// "estimated_cost > 10000" against a request payload.
package condition

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

var ErrInvalidCondition = errors.New("invalid condition")

// Cache compiles each expression once and is safe for concurrent use.
type Cache struct {
	programs sync.Map // expression -> *vm.Program
}

func NewCache() *Cache {
	return &Cache{}
}

// Compile checks that expression parses as a boolean expression. An empty
// expression is valid.
func (c *Cache) Compile(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return nil
	}

	_, err := c.program(expression)

	return err
}

// Evaluate runs expression against payload. An empty expression is always true.
func (c *Cache) Evaluate(expression string, payload map[string]any) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}

	program, err := c.program(expression)
	if err != nil {
		return false, err
	}

	env := payload
	if env == nil {
		env = map[string]any{}
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("%w: evaluating %q: %v", ErrInvalidCondition, expression, err)
	}

	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q evaluated to %T, expected bool", ErrInvalidCondition, expression, out)
	}

	return result, nil
}

func (c *Cache) program(expression string) (*vm.Program, error) {
	if cached, ok := c.programs.Load(expression); ok {
		return cached.(*vm.Program), nil
	}

	program, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: compiling %q: %v", ErrInvalidCondition, expression, err)
	}

	actual, _ := c.programs.LoadOrStore(expression, program)

	return actual.(*vm.Program), nil
}
