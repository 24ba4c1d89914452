package stats

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"stats-bot/internal/command"
	"stats-bot/internal/models"
	"stats-bot/internal/service"
	"stats-bot/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	noMessages = "No matching messages"
	maxAliases = 5
)

// MessageQuery 统计所需的只读查询
type MessageQuery interface {
	CountByUser(ctx context.Context, filter service.MessageFilter, limit int) ([]service.UserCount, error)
	CountMessages(ctx context.Context, filter service.MessageFilter) (int64, error)
	CountByType(ctx context.Context, filter service.MessageFilter) ([]service.TypeCount, error)
	MessageDates(ctx context.Context, filter service.MessageFilter) ([]time.Time, error)
	MessageAt(ctx context.Context, filter service.MessageFilter, offset int) (*models.Message, error)
}

// NameResolver 用户显示名称
type NameResolver interface {
	Name(userID int64) string
}

// NameHistory 用户名历史
type NameHistory interface {
	History(ctx context.Context, userID int64) ([]models.UserName, error)
}

// Runner 统计引擎，按操作名分发
type Runner struct {
	messages MessageQuery
	names    NameResolver
	history  NameHistory
	loc      *time.Location
	intn     func(n int) int
}

// NewRunner 创建统计引擎，按 loc 时区统计小时和星期
func NewRunner(messages MessageQuery, names NameResolver, history NameHistory, loc *time.Location) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{
		messages: messages,
		names:    names,
		history:  history,
		loc:      loc,
		intn:     rand.Intn,
	}
}

// Run 执行统计操作
func (r *Runner) Run(ctx context.Context, req command.Request) (command.Result, error) {
	logrus.WithFields(logrus.Fields{
		"操作": req.Op,
		"用户": userLabel(req.User),
	}).Debug("📊 执行统计操作")

	switch req.Op {
	case command.OpCounts:
		return r.counts(ctx, req)
	case command.OpHours:
		return r.hours(ctx, req)
	case command.OpDays:
		return r.days(ctx, req)
	case command.OpTypes:
		return r.types(ctx, req)
	case command.OpSummary:
		return r.summary(ctx, req)
	case command.OpRandom:
		return r.random(ctx, req)
	default:
		return command.Result{}, command.NewHelpError("unknown operation %q", req.Op)
	}
}

// filter 请求转换为查询条件
func filter(req command.Request) service.MessageFilter {
	f := service.MessageFilter{Start: req.Start, End: req.End}
	if req.User != nil {
		id := req.User.ID
		f.UserID = &id
	}
	return f
}

func (r *Runner) counts(ctx context.Context, req command.Request) (command.Result, error) {
	f := filter(req)
	rows, err := r.messages.CountByUser(ctx, f, req.Limit)
	if err != nil {
		return command.Result{}, fmt.Errorf("count by user: %w", err)
	}
	if len(rows) == 0 {
		return command.Result{Text: noMessages}, nil
	}

	// 占比按全体成员计算
	f.UserID = nil
	total, err := r.messages.CountMessages(ctx, f)
	if err != nil {
		return command.Result{}, fmt.Errorf("count messages: %w", err)
	}

	table := newTable("User", "Total", "Percent")
	for _, row := range rows {
		table.row(r.name(row.FromUser), strconv.FormatInt(row.Count, 10), percent(row.Count, total))
	}
	return command.Result{Text: utils.CodeBlock(table.String())}, nil
}

func (r *Runner) hours(ctx context.Context, req command.Request) (command.Result, error) {
	dates, err := r.messages.MessageDates(ctx, filter(req))
	if err != nil {
		return command.Result{}, fmt.Errorf("message dates: %w", err)
	}
	if len(dates) == 0 {
		return command.Result{Text: noMessages}, nil
	}

	buckets := make([]int64, 24)
	for _, d := range dates {
		buckets[d.In(r.loc).Hour()]++
	}

	labels := make([]string, 24)
	table := newTable("Hour", "Messages", "Percent")
	for h, n := range buckets {
		labels[h] = fmt.Sprintf("%02d", h)
		table.row(labels[h], strconv.FormatInt(n, 10), percent(n, int64(len(dates))))
	}

	image := r.chart("Messages by hour"+titleSuffix(req.User), labels, buckets)
	return command.Result{Text: utils.CodeBlock(table.String()), Image: image}, nil
}

var weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

func (r *Runner) days(ctx context.Context, req command.Request) (command.Result, error) {
	dates, err := r.messages.MessageDates(ctx, filter(req))
	if err != nil {
		return command.Result{}, fmt.Errorf("message dates: %w", err)
	}
	if len(dates) == 0 {
		return command.Result{Text: noMessages}, nil
	}

	counts := make(map[time.Weekday]int64, 7)
	for _, d := range dates {
		counts[d.In(r.loc).Weekday()]++
	}

	labels := make([]string, len(weekdays))
	values := make([]int64, len(weekdays))
	table := newTable("Day", "Messages", "Percent")
	for i, day := range weekdays {
		labels[i] = day.String()[:3]
		values[i] = counts[day]
		table.row(day.String(), strconv.FormatInt(values[i], 10), percent(values[i], int64(len(dates))))
	}

	image := r.chart("Messages by day"+titleSuffix(req.User), labels, values)
	return command.Result{Text: utils.CodeBlock(table.String()), Image: image}, nil
}

func (r *Runner) types(ctx context.Context, req command.Request) (command.Result, error) {
	rows, err := r.messages.CountByType(ctx, filter(req))
	if err != nil {
		return command.Result{}, fmt.Errorf("count by type: %w", err)
	}
	if len(rows) == 0 {
		return command.Result{Text: noMessages}, nil
	}

	var total int64
	for _, row := range rows {
		total += row.Count
	}

	table := newTable("Type", "Total", "Percent")
	for _, row := range rows {
		table.row(row.Type, strconv.FormatInt(row.Count, 10), percent(row.Count, total))
	}
	return command.Result{Text: utils.CodeBlock(table.String())}, nil
}

func (r *Runner) summary(ctx context.Context, req command.Request) (command.Result, error) {
	if req.User == nil {
		return command.Result{}, command.NewHelpError("summary requires --user or --me")
	}

	f := filter(req)
	dates, err := r.messages.MessageDates(ctx, f)
	if err != nil {
		return command.Result{}, fmt.Errorf("message dates: %w", err)
	}
	if len(dates) == 0 {
		return command.Result{Text: noMessages}, nil
	}

	everyone := f
	everyone.UserID = nil
	total, err := r.messages.CountMessages(ctx, everyone)
	if err != nil {
		return command.Result{}, fmt.Errorf("count messages: %w", err)
	}

	kinds, err := r.messages.CountByType(ctx, f)
	if err != nil {
		return command.Result{}, fmt.Errorf("count by type: %w", err)
	}

	hours := make([]int64, 24)
	activeDays := make(map[string]struct{})
	for _, d := range dates {
		local := d.In(r.loc)
		hours[local.Hour()]++
		activeDays[utils.FormatDate(local)] = struct{}{}
	}
	busiest := 0
	for h := range hours {
		if hours[h] > hours[busiest] {
			busiest = h
		}
	}

	count := int64(len(dates))
	table := newTable("", "")
	table.row("User", req.User.Name)
	table.row("Messages", strconv.FormatInt(count, 10))
	table.row("Share", percent(count, total))
	table.row("First", utils.FormatTimestamp(dates[0].In(r.loc)))
	table.row("Last", utils.FormatTimestamp(dates[len(dates)-1].In(r.loc)))
	table.row("Active days", strconv.Itoa(len(activeDays)))
	table.row("Busiest hour", fmt.Sprintf("%02d:00", busiest))
	if len(kinds) > 0 {
		table.row("Top type", kinds[0].Type)
	}
	if aliases := r.aliases(ctx, req.User.ID); aliases != "" {
		table.row("Known as", aliases)
	}
	return command.Result{Text: utils.CodeBlock(table.String())}, nil
}

// aliases 用户用过的名称，最新的在前
func (r *Runner) aliases(ctx context.Context, userID int64) string {
	if r.history == nil {
		return ""
	}
	rows, err := r.history.History(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("用户ID", userID).Warn("⚠️ 获取用户名历史失败")
		return ""
	}

	seen := make(map[string]struct{})
	var out []string
	for i := len(rows) - 1; i >= 0 && len(out) < maxAliases; i-- {
		name := rows[i].Identity().Name()
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return strings.Join(out, ", ")
}

func (r *Runner) random(ctx context.Context, req command.Request) (command.Result, error) {
	f := filter(req)
	f.Types = []string{models.MessageTypeText}

	total, err := r.messages.CountMessages(ctx, f)
	if err != nil {
		return command.Result{}, fmt.Errorf("count messages: %w", err)
	}
	if total == 0 {
		return command.Result{Text: noMessages}, nil
	}

	msg, err := r.messages.MessageAt(ctx, f, r.intn(int(total)))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return command.Result{Text: noMessages}, nil
	}
	if err != nil {
		return command.Result{}, fmt.Errorf("pick message: %w", err)
	}

	text := ""
	if msg.Text != nil {
		text = *msg.Text
	}
	author := msg.Author()
	header := utils.FormatUserMention(author, r.name(author)) +
		utils.EscapeMarkdown(fmt.Sprintf(", %s:", utils.FormatTimestamp(msg.Date.In(r.loc))))
	return command.Result{
		Text: "*" + header + "*\n" + utils.EscapeMarkdown(text),
	}, nil
}

// chart 生成图表，失败时只记录日志，文字结果照常返回
func (r *Runner) chart(title string, labels []string, values []int64) []byte {
	image, err := barChart(title, labels, values)
	if err != nil {
		logrus.WithError(err).Warn("⚠️ 生成图表失败")
		return nil
	}
	return image
}

// name 用户显示名称，未知时使用ID
func (r *Runner) name(userID int64) string {
	if r.names != nil {
		if name := r.names.Name(userID); name != "" {
			return name
		}
	}
	return strconv.FormatInt(userID, 10)
}

func userLabel(user *command.UserRef) string {
	if user == nil {
		return "全部"
	}
	return user.Name
}

func titleSuffix(user *command.UserRef) string {
	if user == nil {
		return ""
	}
	return " for " + user.Name
}

func percent(part, total int64) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(part)*100/float64(total))
}

// table 对齐的文本表格
type table struct {
	buf strings.Builder
	w   *tabwriter.Writer
}

func newTable(headers ...string) *table {
	t := &table{}
	t.w = tabwriter.NewWriter(&t.buf, 0, 0, 2, ' ', 0)
	if headers[0] != "" {
		t.row(headers...)
	}
	return t
}

func (t *table) row(cells ...string) {
	fmt.Fprintln(t.w, strings.Join(cells, "\t"))
}

func (t *table) String() string {
	t.w.Flush()
	return strings.TrimRight(t.buf.String(), "\n")
}
