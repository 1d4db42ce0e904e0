package condition

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Evaluate(t *testing.T) {
	cache := NewCache()

	tests := []struct {
		name       string
		expression string
		payload    map[string]any
		expected   bool
		wantErr    bool
	}{
		{name: "empty expression is true", expression: "", expected: true},
		{name: "blank expression is true", expression: "   ", expected: true},
		{name: "greater than true", expression: "estimated_cost > 10000", payload: map[string]any{"estimated_cost": 12000.0}, expected: true},
		{name: "greater than false", expression: "estimated_cost > 10000", payload: map[string]any{"estimated_cost": 800}, expected: false},
		{name: "string equality", expression: `department == "IT"`, payload: map[string]any{"department": "IT"}, expected: true},
		{name: "combined", expression: `seats >= 10 && vendor != "internal"`, payload: map[string]any{"seats": 12, "vendor": "Adobe"}, expected: true},
		{name: "literal false", expression: "false", expected: false},
		{name: "missing field errors", expression: "estimated_cost > 10000", payload: map[string]any{}, wantErr: true},
		{name: "non boolean result errors", expression: "estimated_cost", payload: map[string]any{"estimated_cost": 10}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := cache.Evaluate(tt.expression, tt.payload)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidCondition)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestCache_Compile(t *testing.T) {
	cache := NewCache()

	require.NoError(t, cache.Compile("annual_cost > 10000"))
	require.NoError(t, cache.Compile(""))

	err := cache.Compile("annual_cost >")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCondition)
}

func TestCache_ConcurrentEvaluate(t *testing.T) {
	cache := NewCache()

	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			result, err := cache.Evaluate("amount > 25", map[string]any{"amount": i})
			assert.NoError(t, err)
			assert.Equal(t, i > 25, result)
		}(i)
	}

	wg.Wait()
}
