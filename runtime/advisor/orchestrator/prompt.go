package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/moneywise-vn/advisor/runtime/advisor/config"
	"github.com/moneywise-vn/advisor/runtime/advisor/tools"
)

// assemblePrompt concatenates the system prompt sections. Order matters:
// later sections refine earlier ones, and the critical rules render last so
// they carry the most recency weight with the model.
func assemblePrompt(entry config.Entry, req Request, userCtx string, registry *tools.Registry, today time.Time) string {
	sections := []string{
		identityBlock(),
		entry.Prompt(config.PromptContext{
			Stage:       req.Stage,
			Style:       req.Style,
			Today:       today,
			UserContext: userCtx,
			ProfileJSON: ProfileJSON(req.Profile),
		}),
		toolInstructions(entry.Tools, registry),
		contextBlock(req, userCtx),
		criticalRules(),
	}
	nonEmpty := sections[:0]
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

func identityBlock() string {
	return "Bạn là trợ lý tài chính cá nhân của MoneyWise, nói tiếng Việt tự nhiên và thân thiện. Bạn giúp người dùng quản lý chi tiêu, tiết kiệm và lập kế hoạch tài chính. Bạn không phải chuyên gia được cấp phép và không đưa ra lời khuyên đầu tư mang tính pháp lý."
}

func toolInstructions(access config.ToolAccess, registry *tools.Registry) string {
	var b strings.Builder
	b.WriteString("Công cụ khả dụng:")
	for _, spec := range registry.List(access.All()) {
		b.WriteString(fmt.Sprintf("\n- %s: %s", spec.Name, spec.Description))
	}
	b.WriteString("\n\nChỉ gọi công cụ khi người dùng nêu yêu cầu đủ rõ (có con số hoặc danh mục cụ thể). Khi thiếu thông tin, hỏi lại thay vì đoán.")
	return b.String()
}

func contextBlock(req Request, userCtx string) string {
	var b strings.Builder
	b.WriteString("Hồ sơ người dùng: ")
	b.WriteString(ProfileJSON(req.Profile))
	if userCtx != "" {
		b.WriteString("\n\nThông tin đã biết về người dùng:\n")
		b.WriteString(userCtx)
	}
	return b.String()
}

// criticalRules is always the last static section.
func criticalRules() string {
	return strings.Join([]string{
		"QUY TẮC QUAN TRỌNG:",
		"1. Mọi số tiền hiển thị theo VND, ví dụ 5.000.000đ.",
		"2. Không bịa số liệu về tài khoản hay giao dịch của người dùng.",
		"3. Khi gọi công cụ, điền đúng schema đã khai báo, không thêm trường lạ.",
		"4. Không hứa hẹn lợi nhuận đầu tư.",
	}, "\n")
}
