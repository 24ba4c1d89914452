package command

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"stats-bot/internal/utils"

	"github.com/google/shlex"
	"github.com/spf13/cobra"
)

const defaultLimit = 20

// flagSet 操作支持的参数
type flagSet uint8

const (
	flagUser flagSet = 1 << iota
	flagMe
	flagDates
	flagLimit
)

// opSpec 操作表中的一项
type opSpec struct {
	op    Operation
	short string
	flags flagSet
}

// operations 所有支持的统计操作
var operations = []opSpec{
	{OpCounts, "Message counts per user", flagUser | flagMe | flagDates | flagLimit},
	{OpHours, "Messages by hour of day", flagUser | flagMe | flagDates},
	{OpDays, "Messages by day of week", flagUser | flagMe | flagDates},
	{OpTypes, "Message counts by type", flagUser | flagMe | flagDates},
	{OpSummary, "Summary of one user's activity", flagUser | flagMe | flagDates},
	{OpRandom, "A random message", flagUser | flagMe | flagDates},
}

// parsedArgs 解析出的原始参数，尚未校验
type parsedArgs struct {
	op        Operation
	userID    int64
	userGiven bool
	me        bool
	start     *time.Time
	end       *time.Time
	limit     int
}

// usageError 解析阶段的用户输入错误，附带用法说明
type usageError struct {
	message string
}

func (e *usageError) Error() string {
	return e.message
}

// dateValue 按配置时区解析 YYYY-MM-DD 的参数值
type dateValue struct {
	target **time.Time
	loc    *time.Location
}

func (d *dateValue) String() string {
	if d.target == nil || *d.target == nil {
		return ""
	}
	return utils.FormatDate(**d.target)
}

func (d *dateValue) Set(value string) error {
	t, err := utils.ParseDate(value, d.loc)
	if err != nil {
		return err
	}
	*d.target = &t
	return nil
}

func (d *dateValue) Type() string {
	return "date"
}

// parser 每次解析都新建命令树，参数状态不跨请求共享
type parser struct {
	loc *time.Location
}

// build 构建命令树，helped 记录请求了帮助的命令
func (p *parser) build(args *parsedArgs, helped **cobra.Command) *cobra.Command {
	root := &cobra.Command{
		Use:           "/stats [operation] [flags]",
		Short:         "Chat statistics",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			args.op = OpCounts
			args.userGiven = cmd.Flags().Changed("user")
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	p.addFlags(root, operations[0].flags, args)

	for _, spec := range operations {
		spec := spec
		sub := &cobra.Command{
			Use:   string(spec.op),
			Short: spec.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				args.op = spec.op
				args.userGiven = cmd.Flags().Changed("user")
				return nil
			},
		}
		p.addFlags(sub, spec.flags, args)
		root.AddCommand(sub)
	}

	root.SetHelpFunc(func(cmd *cobra.Command, _ []string) {
		*helped = cmd
	})
	return root
}

func (p *parser) addFlags(cmd *cobra.Command, flags flagSet, args *parsedArgs) {
	if flags&flagUser != 0 {
		cmd.Flags().Int64VarP(&args.userID, "user", "u", 0, "user id to filter on")
	}
	if flags&flagMe != 0 {
		cmd.Flags().BoolVar(&args.me, "me", false, "use your own user id")
	}
	if flags&flagDates != 0 {
		cmd.Flags().Var(&dateValue{target: &args.start, loc: p.loc}, "start", "start date (YYYY-MM-DD)")
		cmd.Flags().Var(&dateValue{target: &args.end, loc: p.loc}, "end", "end date (YYYY-MM-DD), inclusive")
	}
	if flags&flagLimit != 0 {
		cmd.Flags().IntVarP(&args.limit, "limit", "n", defaultLimit, "number of entries")
	}
}

// parse 分词并按语法解析，用户输入错误返回 *usageError
func (p *parser) parse(ctx context.Context, text string) (*parsedArgs, error) {
	tokens, err := shlex.Split(text)
	if err != nil {
		return nil, &usageError{message: fmt.Sprintf("could not parse arguments: %v\n\n%s", err, p.usage())}
	}
	if tokens == nil {
		tokens = []string{}
	}

	args := &parsedArgs{limit: defaultLimit}
	var helped *cobra.Command
	root := p.build(args, &helped)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(tokens)

	cmd, err := root.ExecuteContextC(ctx)
	if helped != nil {
		return nil, &usageError{message: helped.UsageString()}
	}
	if err != nil {
		usage := root.UsageString()
		if cmd != nil {
			usage = cmd.UsageString()
		}
		return nil, &usageError{message: fmt.Sprintf("%v\n\n%s", err, usage)}
	}
	if args.op == "" {
		// help 子命令遇到未知主题时不会调用帮助函数
		return nil, &usageError{message: root.UsageString()}
	}
	return args, nil
}

// usage 顶层用法说明
func (p *parser) usage() string {
	var helped *cobra.Command
	return p.build(&parsedArgs{}, &helped).UsageString()
}
