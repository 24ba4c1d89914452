package utils

import (
	"strings"
	"unicode/utf8"
)

// TruncateString 安全截断字符串到指定长度（支持 UTF-8）
// maxLen 是字符数（不是字节数）
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}

	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}

	runes := []rune(s)
	return string(runes[:maxLen])
}

// SanitizeString 移除前后空白并合并连续空白
func SanitizeString(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SafeUsername 安全处理用户名，限制长度并清理
func SafeUsername(username string) string {
	return TruncateString(SanitizeString(username), 255)
}

// SafeFullName 安全处理全名，限制长度并清理
func SafeFullName(fullName string) string {
	return TruncateString(SanitizeString(fullName), 255)
}

// FullName 拼接 Telegram 用户的姓和名
func FullName(firstName, lastName string) string {
	if lastName == "" {
		return SafeFullName(firstName)
	}
	return SafeFullName(firstName + " " + lastName)
}

// ShortName 返回 @username，没有用户名时退回全名
func ShortName(username, firstName, lastName string) string {
	if username != "" {
		return "@" + SafeUsername(username)
	}
	return FullName(firstName, lastName)
}
