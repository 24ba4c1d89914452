package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"stats-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine 记录收到的请求
type fakeEngine struct {
	requests []Request
	result   Result
	err      error
}

func (f *fakeEngine) Run(_ context.Context, req Request) (Result, error) {
	f.requests = append(f.requests, req)
	return f.result, f.err
}

type directory map[int64]models.Identity

func (d directory) Lookup(userID int64) (models.Identity, bool) {
	identity, ok := d[userID]
	return identity, ok
}

var caller = Caller{ID: 99, Name: "@me"}

func newPipeline(engine Engine) *Pipeline {
	users := directory{42: models.NewIdentity("@alice", "Alice A.")}
	return NewPipeline(engine, users, time.UTC)
}

func TestPipeline_DefaultsToCounts(t *testing.T) {
	engine := &fakeEngine{result: Result{Text: "table"}}
	out := newPipeline(engine).Run(context.Background(), caller, "")

	assert.Equal(t, Success{Text: "table"}, out)
	require.Len(t, engine.requests, 1)
	assert.Equal(t, OpCounts, engine.requests[0].Op)
	assert.Equal(t, defaultLimit, engine.requests[0].Limit)
	assert.Nil(t, engine.requests[0].User)
}

func TestPipeline_UnknownUserIsHelp(t *testing.T) {
	engine := &fakeEngine{}
	out := newPipeline(engine).Run(context.Background(), caller, "--user 12345")

	help, ok := out.(Help)
	require.True(t, ok, "got %#v", out)
	assert.Contains(t, help.Message, "unknown")
	assert.Empty(t, engine.requests, "engine is never reached")
}

func TestPipeline_KnownUserResolves(t *testing.T) {
	engine := &fakeEngine{result: Result{Text: "ok"}}
	out := newPipeline(engine).Run(context.Background(), caller, "hours -u 42 --me")

	assert.IsType(t, Success{}, out)
	require.Len(t, engine.requests, 1)
	assert.Equal(t, &UserRef{ID: 42, Name: "@alice"}, engine.requests[0].User, "explicit user wins over --me")
}

func TestPipeline_MeRewritesToCaller(t *testing.T) {
	engine := &fakeEngine{}
	out := newPipeline(engine).Run(context.Background(), caller, "summary --me")

	assert.Equal(t, Success{}, out)
	assert.True(t, out.(Success).Silent())
	require.Len(t, engine.requests, 1)
	assert.Equal(t, &UserRef{ID: 99, Name: "@me"}, engine.requests[0].User)
}

func TestPipeline_ParseFailuresAreHelp(t *testing.T) {
	for _, text := range []string{
		`random "unbalanced`,
		`bogus`,
		`hours --nope`,
		`hours --user notanumber`,
		`counts --start 03/05/2024`,
		`days extra`,
		`--help`,
		`help`,
		`help hours`,
		`counts -n 0`,
		`counts --start 2024-03-05 --end 2024-03-01`,
	} {
		engine := &fakeEngine{}
		out := newPipeline(engine).Run(context.Background(), caller, text)
		help, ok := out.(Help)
		if assert.True(t, ok, "%q: got %#v", text, out) {
			assert.NotEmpty(t, help.Message, text)
		}
		assert.Empty(t, engine.requests, text)
	}
}

func TestPipeline_HelpShowsOperationUsage(t *testing.T) {
	out := newPipeline(&fakeEngine{}).Run(context.Background(), caller, "hours --help")
	help := out.(Help)
	assert.Contains(t, help.Message, "--user")
	assert.Contains(t, help.Message, "hours")
}

func TestPipeline_DateRange(t *testing.T) {
	engine := &fakeEngine{}
	newPipeline(engine).Run(context.Background(), caller, `types --start "2024-03-01" --end 2024-03-01`)

	require.Len(t, engine.requests, 1)
	req := engine.requests[0]
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *req.Start)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), *req.End, "end date is inclusive")
}

func TestPipeline_EngineSignals(t *testing.T) {
	engine := &fakeEngine{err: NewHelpError("summary requires --user or --me")}
	out := newPipeline(engine).Run(context.Background(), caller, "summary")
	assert.Equal(t, Help{Message: "summary requires --user or --me"}, out)

	boom := errors.New("query failed")
	engine = &fakeEngine{err: boom}
	out = newPipeline(engine).Run(context.Background(), caller, "random")
	failure, ok := out.(Error)
	require.True(t, ok)
	assert.ErrorIs(t, failure.Err, boom)
	assert.Equal(t, "error", failure.Kind())
}

func TestPipeline_FlagsDoNotLeakBetweenRuns(t *testing.T) {
	engine := &fakeEngine{}
	p := newPipeline(engine)
	p.Run(context.Background(), caller, "counts -n 5 --me")
	p.Run(context.Background(), caller, "counts")

	require.Len(t, engine.requests, 2)
	assert.Equal(t, 5, engine.requests[0].Limit)
	assert.Equal(t, defaultLimit, engine.requests[1].Limit)
	assert.Nil(t, engine.requests[1].User)
}

func TestPipeline_Usage(t *testing.T) {
	usage := newPipeline(&fakeEngine{}).Usage()
	for _, spec := range operations {
		assert.Contains(t, usage, string(spec.op))
	}
}
