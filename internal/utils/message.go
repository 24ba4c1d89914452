package utils

import (
	"fmt"
	"strings"
)

var markdownReplacer = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
	"~", "\\~",
	"`", "\\`",
	">", "\\>",
	"#", "\\#",
	"+", "\\+",
	"-", "\\-",
	"=", "\\=",
	"|", "\\|",
	"{", "\\{",
	"}", "\\}",
	".", "\\.",
	"!", "\\!",
)

// 代码块内只需要转义反斜杠和反引号
var codeReplacer = strings.NewReplacer(
	"\\", "\\\\",
	"`", "\\`",
)

// EscapeMarkdown 转义 MarkdownV2 特殊字符
func EscapeMarkdown(text string) string {
	return markdownReplacer.Replace(text)
}

// CodeBlock 将文本包装为 MarkdownV2 代码块
func CodeBlock(text string) string {
	return "```\n" + codeReplacer.Replace(text) + "\n```"
}

// FormatUserMention 格式化用户提及链接
func FormatUserMention(userID int64, name string) string {
	return fmt.Sprintf("[%s](tg://user?id=%d)", EscapeMarkdown(name), userID)
}
