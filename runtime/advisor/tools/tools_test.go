package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDefinitionPreservesRequired(t *testing.T) {
	for _, spec := range Catalog() {
		def := RenderDefinition(spec)
		require.NotNil(t, def)
		assert.Equal(t, string(spec.Name), def.Name)
		assert.Equal(t, spec.Description, def.Description)
		assert.Equal(t, "object", def.InputSchema["type"])

		var declared []string
		for _, name := range sortedKeys(spec.Params.Properties) {
			if spec.Params.Properties[name].Required {
				declared = append(declared, name)
			}
		}
		rendered, _ := def.InputSchema["required"].([]string)
		assert.Equal(t, declared, rendered, "tool %s", spec.Name)
	}
}

func TestRenderDefinitionNestedRequired(t *testing.T) {
	spec, ok := DefaultRegistry().Describe(IdentCreateBudget)
	require.True(t, ok)
	def := RenderDefinition(spec)

	props := def.InputSchema["properties"].(map[string]any)
	contextField := props["context"].(map[string]any)
	required, _ := contextField["required"].([]string)
	assert.Equal(t, []string{"amount"}, required)
}

func TestNewRegistryRejectsConflictingDuplicate(t *testing.T) {
	spec := Catalog()[0]
	conflicting := spec
	conflicting.Description = "something else entirely"

	_, err := NewRegistry(spec, conflicting)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflicting registration")
}

func TestNewRegistryAllowsIdenticalDuplicate(t *testing.T) {
	spec := Catalog()[0]
	r, err := NewRegistry(spec, spec)
	require.NoError(t, err)

	got, ok := r.Describe(spec.Name)
	require.True(t, ok)
	assert.Equal(t, spec, got)
}

func TestNewRegistryRejectsIncompleteSpecs(t *testing.T) {
	_, err := NewRegistry(Spec{Description: "no name"})
	assert.Error(t, err)

	_, err = NewRegistry(Spec{Name: "nameless_desc"})
	assert.Error(t, err)
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	r := DefaultRegistry()
	// Request in reverse of registration order; List returns catalog order.
	specs := r.List([]Ident{IdentOpenTool, IdentCreateBudget, "never_registered"})
	require.Len(t, specs, 2)
	assert.Equal(t, IdentCreateBudget, specs[0].Name)
	assert.Equal(t, IdentOpenTool, specs[1].Name)
}

func TestDefinitionsRendersSelectedTools(t *testing.T) {
	r := DefaultRegistry()
	defs := r.Definitions([]Ident{IdentRecordExpense, IdentOpenTool})
	require.Len(t, defs, 2)
	assert.Equal(t, "record_expense", defs[0].Name)
	assert.Equal(t, "open_tool", defs[1].Name)
}

func TestValidateArgs(t *testing.T) {
	r := DefaultRegistry()

	err := r.ValidateArgs(IdentCreateBudget, map[string]any{
		"component_id": "budget_card",
		"title":        "Tạo ngân sách ăn uống",
		"context": map[string]any{
			"amount": 5000000,
			"period": "monthly",
		},
	})
	assert.NoError(t, err)

	err = r.ValidateArgs(IdentCreateBudget, map[string]any{
		"component_id": "budget_card",
	})
	assert.Error(t, err, "missing required title and context")

	err = r.ValidateArgs(IdentCreateBudget, map[string]any{
		"component_id": "budget_card",
		"title":        "x",
		"context": map[string]any{
			"amount": "not a number",
		},
	})
	assert.Error(t, err, "amount must be a number")

	err = r.ValidateArgs(IdentCreateBudget, map[string]any{
		"component_id": "budget_card",
		"title":        "x",
		"context": map[string]any{
			"amount": 100000,
			"period": "daily",
		},
	})
	assert.Error(t, err, "period outside enum")

	err = r.ValidateArgs("no_such_tool", map[string]any{})
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestValidateArgsNilMap(t *testing.T) {
	r := DefaultRegistry()
	// open_tool requires tool_id, so nil args must fail cleanly.
	err := r.ValidateArgs(IdentOpenTool, nil)
	assert.Error(t, err)

	// render_component only requires component_id.
	err = r.ValidateArgs(IdentRenderComponent, map[string]any{"component_id": "net_worth"})
	assert.NoError(t, err)
}
