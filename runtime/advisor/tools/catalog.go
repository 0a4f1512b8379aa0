package tools

// Canonical tool identifiers. The stage/style configuration selects subsets
// of this catalog per conversation.
const (
	// IdentCreateBudget creates a monthly budget for a spending category.
	IdentCreateBudget Ident = "create_budget"

	// IdentSuggestSavingsPlan proposes a savings plan toward a goal.
	IdentSuggestSavingsPlan Ident = "suggest_savings_plan"

	// IdentRecordExpense records a single expense entry.
	IdentRecordExpense Ident = "record_expense"

	// IdentRenderComponent renders an interactive UI component inline.
	IdentRenderComponent Ident = "render_component"

	// IdentOpenTool opens a standalone tool screen (calculators etc).
	IdentOpenTool Ident = "open_tool"
)

// Catalog returns the full advisor tool catalog. Amounts are VND so all
// monetary fields are plain numbers, no currency subfield.
func Catalog() []Spec {
	return []Spec{
		{
			Name:        IdentCreateBudget,
			Description: "Create a monthly budget for a spending category. Use when the user asks to set up, adjust or plan a budget.",
			Kind:        KindComponent,
			Params: Schema{Properties: map[string]Field{
				"component_id": {
					Type:        TypeString,
					Description: "UI component to render for the budget, e.g. budget_card.",
					Required:    true,
				},
				"title": {
					Type:        TypeString,
					Description: "Short budget title in the user's language.",
					Required:    true,
				},
				"context": {
					Type:        TypeObject,
					Description: "Budget parameters passed to the component.",
					Required:    true,
					Properties: map[string]Field{
						"category": {Type: TypeString, Description: "Spending category, e.g. an_uong."},
						"amount":   {Type: TypeNumber, Description: "Monthly amount in VND.", Required: true},
						"period":   {Type: TypeString, Description: "Budget period.", Enum: []string{"weekly", "monthly"}},
					},
				},
			}},
		},
		{
			Name:        IdentSuggestSavingsPlan,
			Description: "Propose a savings plan toward a goal amount with a monthly contribution.",
			Kind:        KindChat,
			Params: Schema{Properties: map[string]Field{
				"title": {
					Type:        TypeString,
					Description: "Plan title in the user's language.",
					Required:    true,
				},
				"context": {
					Type:        TypeObject,
					Description: "Plan parameters.",
					Required:    true,
					Properties: map[string]Field{
						"goal_amount":   {Type: TypeNumber, Description: "Target amount in VND.", Required: true},
						"monthly_saved": {Type: TypeNumber, Description: "Monthly contribution in VND.", Required: true},
						"months":        {Type: TypeInteger, Description: "Months to reach the goal."},
					},
				},
			}},
		},
		{
			Name:        IdentRecordExpense,
			Description: "Record a single expense the user mentions.",
			Kind:        KindChat,
			Params: Schema{Properties: map[string]Field{
				"title": {
					Type:        TypeString,
					Description: "Expense description in the user's language.",
					Required:    true,
				},
				"context": {
					Type:        TypeObject,
					Description: "Expense details.",
					Required:    true,
					Properties: map[string]Field{
						"amount":   {Type: TypeNumber, Description: "Amount in VND.", Required: true},
						"category": {Type: TypeString, Description: "Spending category."},
						"note":     {Type: TypeString, Description: "Optional note."},
					},
				},
			}},
		},
		{
			Name:        IdentRenderComponent,
			Description: "Render a registered UI component inline in the conversation.",
			Kind:        KindComponent,
			Params: Schema{Properties: map[string]Field{
				"component_id": {
					Type:        TypeString,
					Description: "Registered component identifier.",
					Required:    true,
				},
				"title": {
					Type:        TypeString,
					Description: "Heading shown above the component.",
				},
				"context": {
					Type:        TypeObject,
					Description: "Arbitrary props forwarded to the component.",
				},
			}},
		},
		{
			Name:        IdentOpenTool,
			Description: "Open a standalone financial tool screen, e.g. a compound interest calculator.",
			Kind:        KindExternal,
			Params: Schema{Properties: map[string]Field{
				"tool_id": {
					Type:        TypeString,
					Description: "Registered tool screen identifier.",
					Required:    true,
				},
				"title": {
					Type:        TypeString,
					Description: "Link text shown to the user.",
				},
				"context": {
					Type:        TypeObject,
					Description: "Prefill parameters for the tool screen.",
				},
			}},
		},
	}
}

// DefaultRegistry builds a registry over the full catalog. It panics when the
// compiled-in catalog is invalid, which only happens on a programming error.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Catalog()...)
	if err != nil {
		panic(err)
	}
	return r
}
