// Package config resolves a user's (financial stage, budget style) pair to
// the system prompt builder and allowed tool sets for their conversation.
// The table is built once at bootstrap by BuildResolver and is immutable and
// side-effect free afterwards; Validate walks the full cross-product so a
// missing cell fails startup instead of a live turn.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/moneywise-vn/advisor/runtime/advisor/tools"
)

// FinancialStage classifies the user's financial situation.
type FinancialStage string

const (
	StageEliminateDebt    FinancialStage = "ELIMINATE_DEBT"
	StageStartSaving      FinancialStage = "START_SAVING"
	StageGrowInvestments  FinancialStage = "GROW_INVESTMENTS"
	StageOptimizeSpending FinancialStage = "OPTIMIZE_SPENDING"
)

// Stages returns every declared stage.
func Stages() []FinancialStage {
	return []FinancialStage{
		StageEliminateDebt,
		StageStartSaving,
		StageGrowInvestments,
		StageOptimizeSpending,
	}
}

// Valid reports whether the stage is a declared member.
func (s FinancialStage) Valid() bool {
	switch s {
	case StageEliminateDebt, StageStartSaving, StageGrowInvestments, StageOptimizeSpending:
		return true
	}
	return false
}

func (s FinancialStage) String() string { return string(s) }

// ParseStage converts a wire string into a FinancialStage.
func ParseStage(s string) (FinancialStage, error) {
	stage := FinancialStage(strings.ToUpper(strings.TrimSpace(s)))
	if !stage.Valid() {
		return "", fmt.Errorf("config: unknown financial stage %q", s)
	}
	return stage, nil
}

// BudgetStyle modulates tone and verbosity within a stage.
type BudgetStyle string

const (
	StyleDetailTracker BudgetStyle = "DETAIL_TRACKER"
	StyleGoalPlanner   BudgetStyle = "GOAL_PLANNER"
)

// Styles returns every declared style.
func Styles() []BudgetStyle {
	return []BudgetStyle{StyleDetailTracker, StyleGoalPlanner}
}

// Valid reports whether the style is a declared member.
func (s BudgetStyle) Valid() bool {
	switch s {
	case StyleDetailTracker, StyleGoalPlanner:
		return true
	}
	return false
}

func (s BudgetStyle) String() string { return string(s) }

// ParseStyle converts a wire string into a BudgetStyle.
func ParseStyle(s string) (BudgetStyle, error) {
	style := BudgetStyle(strings.ToUpper(strings.TrimSpace(s)))
	if !style.Valid() {
		return "", fmt.Errorf("config: unknown budget style %q", s)
	}
	return style, nil
}

// Key identifies one cell of the stage/style table.
type Key struct {
	Stage FinancialStage
	Style BudgetStyle
}

func (k Key) String() string {
	return string(k.Stage) + "/" + string(k.Style)
}

// ErrConfigurationMissing reports a stage/style pair with no registered
// configuration. It is a bootstrap failure, not a per-request condition.
var ErrConfigurationMissing = errors.New("config: no configuration registered")

type (
	// PromptContext carries the inputs prompt builders may branch on. All
	// branching lives in Go code so templates stay plain strings.
	PromptContext struct {
		Stage       FinancialStage
		Style       BudgetStyle
		Today       time.Time
		UserContext string
		ProfileJSON string
	}

	// PromptFunc builds the stage-specific instruction block.
	PromptFunc func(PromptContext) string

	// ToolAccess lists the tools a configuration may call, partitioned the
	// way the UI consumes them.
	ToolAccess struct {
		Chat      []tools.Ident
		Component []tools.Ident
		External  []tools.Ident
	}

	// Entry is one resolved configuration cell.
	Entry struct {
		Prompt PromptFunc
		Tools  ToolAccess
	}

	// Resolver is the immutable stage/style lookup table.
	Resolver struct {
		entries map[Key]Entry
	}
)

// All returns every allowed tool across the three partitions, chat first,
// then component, then external.
func (a ToolAccess) All() []tools.Ident {
	out := make([]tools.Ident, 0, len(a.Chat)+len(a.Component)+len(a.External))
	out = append(out, a.Chat...)
	out = append(out, a.Component...)
	out = append(out, a.External...)
	return out
}

// BuildResolver constructs a resolver from explicit cells. Entries with a
// nil prompt or an invalid key are rejected so the table cannot be built
// half-initialized.
func BuildResolver(entries map[Key]Entry) (*Resolver, error) {
	table := make(map[Key]Entry, len(entries))
	for key, entry := range entries {
		if !key.Stage.Valid() {
			return nil, fmt.Errorf("config: entry for invalid stage %q", key.Stage)
		}
		if !key.Style.Valid() {
			return nil, fmt.Errorf("config: entry for invalid style %q", key.Style)
		}
		if entry.Prompt == nil {
			return nil, fmt.Errorf("config: entry %s has no prompt", key)
		}
		if len(entry.Tools.All()) == 0 {
			return nil, fmt.Errorf("config: entry %s has no tools", key)
		}
		table[key] = entry
	}
	return &Resolver{entries: table}, nil
}

// Resolve returns the configuration for the given pair. Resolution is
// deterministic for the process lifetime.
func (r *Resolver) Resolve(stage FinancialStage, style BudgetStyle) (Entry, error) {
	entry, ok := r.entries[Key{Stage: stage, Style: style}]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s/%s", ErrConfigurationMissing, stage, style)
	}
	return entry, nil
}

// Validate walks the full stage x style cross-product and aggregates every
// missing cell into a single error. Call it once at startup.
func (r *Resolver) Validate() error {
	var missing []string
	for _, stage := range Stages() {
		for _, style := range Styles() {
			if _, ok := r.entries[Key{Stage: stage, Style: style}]; !ok {
				missing = append(missing, Key{Stage: stage, Style: style}.String())
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: missing cells: %s", ErrConfigurationMissing, strings.Join(missing, ", "))
}
