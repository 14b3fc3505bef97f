package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ten-framework/ten-runtime-go/schema"
)

const helloResultSchema = `{
  "type": "object",
  "properties": { "detail": { "type": "string" } },
  "required": ["detail"]
}`

func TestRegisterAndValidate(t *testing.T) {
	s := schema.NewStore()
	key := schema.Key{Extension: "ext_b", MsgName: "hello", Dir: schema.Out}
	require.NoError(t, s.Register(key, []byte(helloResultSchema)))
	assert.True(t, s.Has(key))

	assert.NoError(t, s.Validate(key, map[string]any{"detail": "world"}))
	assert.Error(t, s.Validate(key, map[string]any{"detail": 42}))
}

func TestValidateMissingSchemaIsNoop(t *testing.T) {
	s := schema.NewStore()
	assert.NoError(t, s.Validate(schema.Key{Extension: "x", MsgName: "y"}, map[string]any{}))
}
