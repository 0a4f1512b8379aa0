package config

import (
	"fmt"
	"strings"

	"github.com/moneywise-vn/advisor/runtime/advisor/tools"
)

// Default builds the production stage/style table over the standard tool
// catalog. It panics when the compiled-in table is incomplete, which only
// happens on a programming error; Validate still runs at bootstrap.
func Default() *Resolver {
	entries := make(map[Key]Entry)
	for _, stage := range Stages() {
		for _, style := range Styles() {
			entries[Key{Stage: stage, Style: style}] = Entry{
				Prompt: stagePrompt,
				Tools:  stageTools(stage),
			}
		}
	}
	r, err := BuildResolver(entries)
	if err != nil {
		panic(err)
	}
	if err := r.Validate(); err != nil {
		panic(err)
	}
	return r
}

func stageTools(stage FinancialStage) ToolAccess {
	access := ToolAccess{
		Chat:      []tools.Ident{tools.IdentRecordExpense},
		Component: []tools.Ident{tools.IdentRenderComponent},
		External:  []tools.Ident{tools.IdentOpenTool},
	}
	switch stage {
	case StageEliminateDebt:
		access.Chat = append(access.Chat, tools.IdentSuggestSavingsPlan)
	case StageStartSaving:
		access.Chat = append(access.Chat, tools.IdentSuggestSavingsPlan)
		access.Component = append(access.Component, tools.IdentCreateBudget)
	case StageGrowInvestments:
		access.Chat = append(access.Chat, tools.IdentSuggestSavingsPlan)
		access.Component = append(access.Component, tools.IdentCreateBudget)
	case StageOptimizeSpending:
		access.Component = append(access.Component, tools.IdentCreateBudget)
	}
	return access
}

// stagePrompt assembles the stage-specific instruction block. All branching
// happens here; the text fragments are plain strings.
func stagePrompt(pc PromptContext) string {
	var b strings.Builder
	b.WriteString(stageFocus(pc.Stage))
	b.WriteString("\n\n")
	b.WriteString(styleTone(pc.Style))
	if scenario := monthScenario(pc); scenario != "" {
		b.WriteString("\n\n")
		b.WriteString(scenario)
	}
	return b.String()
}

func stageFocus(stage FinancialStage) string {
	switch stage {
	case StageEliminateDebt:
		return "Trọng tâm hiện tại của người dùng là trả hết nợ. Ưu tiên kế hoạch trả nợ trước khi bàn đến tiết kiệm hay đầu tư. Khi người dùng muốn chi tiêu lớn, nhắc khéo về dư nợ còn lại."
	case StageStartSaving:
		return "Người dùng đang xây thói quen tiết kiệm. Khuyến khích lập ngân sách theo danh mục và đặt mục tiêu tiết kiệm cụ thể hàng tháng. Dùng công cụ tạo ngân sách khi người dùng nêu con số rõ ràng."
	case StageGrowInvestments:
		return "Người dùng đã có nền tảng tiết kiệm và muốn tăng trưởng tài sản. Giải thích khái niệm đầu tư đơn giản, không khuyến nghị mã cụ thể, và luôn nhắc về quỹ dự phòng trước khi đầu tư."
	case StageOptimizeSpending:
		return "Người dùng muốn tối ưu chi tiêu hàng ngày. Phân tích các danh mục chi lớn nhất và đề xuất ngân sách chặt hơn cho từng danh mục."
	}
	return ""
}

func styleTone(style BudgetStyle) string {
	switch style {
	case StyleDetailTracker:
		return "Người dùng thích theo dõi chi tiết. Trả lời với số liệu cụ thể, chia nhỏ theo danh mục, và chủ động đề nghị ghi lại từng khoản chi."
	case StyleGoalPlanner:
		return "Người dùng định hướng theo mục tiêu. Giữ câu trả lời ngắn gọn, tập trung vào tiến độ so với mục tiêu thay vì từng khoản chi lẻ."
	}
	return ""
}

// monthScenario adds a month-end review nudge for the last days of the
// month. Date branching stays out of the template text.
func monthScenario(pc PromptContext) string {
	if pc.Today.IsZero() || pc.Today.Day() < 25 {
		return ""
	}
	return fmt.Sprintf("Hôm nay là ngày %d, gần cuối tháng. Nếu phù hợp, gợi ý người dùng xem lại chi tiêu tháng này trước khi lập kế hoạch tháng sau.", pc.Today.Day())
}
