package command

import (
	"context"
	"fmt"
	"time"
)

// Operation 统计操作名称（封闭集合）
type Operation string

const (
	OpCounts  Operation = "counts"
	OpHours   Operation = "hours"
	OpDays    Operation = "days"
	OpTypes   Operation = "types"
	OpSummary Operation = "summary"
	OpRandom  Operation = "random"
)

// UserRef 已解析的用户引用，同时携带ID和显示名称
type UserRef struct {
	ID   int64
	Name string
}

// Request 校验后的操作请求
type Request struct {
	Op    Operation
	User  *UserRef   // 可选的用户过滤
	Start *time.Time // 起始时间（含）
	End   *time.Time // 结束时间（不含）
	Limit int        // 条数上限
}

// Result 统计引擎的输出
type Result struct {
	Text  string
	Image []byte
}

// Engine 统计引擎，按操作名执行
type Engine interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// HelpError 引擎返回的帮助信号，按 Help 结果处理
type HelpError struct {
	Message string
}

func (e *HelpError) Error() string {
	return e.Message
}

// NewHelpError 创建帮助信号
func NewHelpError(format string, args ...interface{}) *HelpError {
	return &HelpError{Message: fmt.Sprintf(format, args...)}
}

// Caller 发起命令的用户
type Caller struct {
	ID   int64
	Name string
}

// Outcome 命令执行结果：Success、Help 或 Error 之一
type Outcome interface {
	outcome()
	Kind() string
}

// Success 成功结果，文本和图片都为空时表示静默成功
type Success struct {
	Text  string
	Image []byte
}

// Help 帮助或用法提示
type Help struct {
	Message string
}

// Error 内部错误
type Error struct {
	Message string
	Err     error
}

func (Success) outcome() {}
func (Help) outcome()    {}
func (Error) outcome()   {}

func (Success) Kind() string { return "success" }
func (Help) Kind() string    { return "help" }
func (Error) Kind() string   { return "error" }

// Silent 没有任何需要发送的内容
func (s Success) Silent() bool {
	return s.Text == "" && len(s.Image) == 0
}
