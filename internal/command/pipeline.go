package command

import (
	"context"
	"errors"
	"strconv"
	"time"

	"stats-bot/internal/metrics"
	"stats-bot/internal/models"

	"github.com/sirupsen/logrus"
)

// UserDirectory 用户身份查询（身份缓存）
type UserDirectory interface {
	Lookup(userID int64) (models.Identity, bool)
}

// Pipeline 命令处理流程：解析、校验、执行、渲染
type Pipeline struct {
	engine Engine
	users  UserDirectory
	parser *parser
}

// NewPipeline 创建命令处理流程，日期参数按 loc 解析
func NewPipeline(engine Engine, users UserDirectory, loc *time.Location) *Pipeline {
	if loc == nil {
		loc = time.UTC
	}
	return &Pipeline{
		engine: engine,
		users:  users,
		parser: &parser{loc: loc},
	}
}

// Usage 顶层用法说明
func (p *Pipeline) Usage() string {
	return p.parser.usage()
}

// Run 处理一条命令参数文本，总是返回三种结果之一
func (p *Pipeline) Run(ctx context.Context, caller Caller, text string) Outcome {
	op := "unknown"
	outcome := p.run(ctx, caller, text, &op)
	metrics.CommandOutcomes.WithLabelValues(op, outcome.Kind()).Inc()
	return outcome
}

func (p *Pipeline) run(ctx context.Context, caller Caller, text string, op *string) Outcome {
	// 解析
	args, err := p.parser.parse(ctx, text)
	if err != nil {
		return Help{Message: err.Error()}
	}
	*op = string(args.op)

	// 校验
	req, help := p.validate(caller, args)
	if help != nil {
		return *help
	}

	// 执行
	result, err := p.engine.Run(ctx, req)
	if err != nil {
		var helpErr *HelpError
		if errors.As(err, &helpErr) {
			return Help{Message: helpErr.Message}
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"操作":   args.op,
			"用户ID": caller.ID,
		}).Error("❌ 统计操作执行失败")
		return Error{Message: "failed to run " + string(args.op), Err: err}
	}

	// 渲染
	return Success{Text: result.Text, Image: result.Image}
}

// validate 解析用户引用并规范化参数
func (p *Pipeline) validate(caller Caller, args *parsedArgs) (Request, *Help) {
	req := Request{
		Op:    args.op,
		Start: args.start,
		Limit: args.limit,
	}

	if args.userGiven {
		identity, ok := p.users.Lookup(args.userID)
		if !ok {
			return req, &Help{Message: "unknown userid"}
		}
		name := identity.Name()
		if name == "" {
			name = strconv.FormatInt(args.userID, 10)
		}
		req.User = &UserRef{ID: args.userID, Name: name}
	} else if args.me {
		// --me 改写为调用者自己的用户引用
		req.User = &UserRef{ID: caller.ID, Name: caller.Name}
	}

	if args.end != nil {
		// 结束日期包含当天
		end := args.end.AddDate(0, 0, 1)
		req.End = &end
	}
	if args.start != nil && args.end != nil && args.start.After(*args.end) {
		return req, &Help{Message: "start date must not be after end date"}
	}
	if req.Limit <= 0 {
		return req, &Help{Message: "-n must be a positive number"}
	}

	return req, nil
}
