package common_test

import (
	"testing"

	"github.com/paveg/lazybridge/internal/common"
	"github.com/stretchr/testify/assert"
)

type testStrategy int

const (
	strategyA testStrategy = iota
	strategyB
)

func TestOptions(t *testing.T) {
	opts := common.NewOptions("TestStrategy",
		common.Option[testStrategy]{Name: "a", Value: strategyA},
		common.Option[testStrategy]{Name: "b", Value: strategyB},
		common.Option[testStrategy]{Name: "bee", Value: strategyB},
	)

	t.Run("Parse", func(t *testing.T) {
		v, ok := opts.Parse("b")
		assert.True(t, ok)
		assert.Equal(t, strategyB, v)

		v, ok = opts.Parse("bee")
		assert.True(t, ok)
		assert.Equal(t, strategyB, v)

		_, ok = opts.Parse("B")
		assert.False(t, ok, "lookups are exact")
	})

	t.Run("Format uses first declared name", func(t *testing.T) {
		assert.Equal(t, "a", opts.Format(strategyA))
		assert.Equal(t, "b", opts.Format(strategyB))
		assert.Equal(t, "unknown_TestStrategy(7)", opts.Format(testStrategy(7)))
	})

	t.Run("Names keeps declaration order", func(t *testing.T) {
		assert.Equal(t, []string{"a", "b", "bee"}, opts.Names())
		names := opts.Names()
		names[0] = "mutated"
		assert.Equal(t, "a", opts.Names()[0])
	})

	assert.Equal(t, "TestStrategy", opts.TypeName())
}
