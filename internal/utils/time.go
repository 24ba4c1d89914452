package utils

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout 命令参数使用的日期格式
const DateLayout = "2006-01-02"

// ParseDate 按指定时区解析 YYYY-MM-DD 格式的日期
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD)", value)
	}
	return t, nil
}

// FormatTimestamp 格式化时间戳
func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// FormatDate 格式化日期
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
