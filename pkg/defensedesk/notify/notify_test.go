package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	redis.Cmdable
	key    string
	pushed [][]byte
	err    error
}

func (f *fakeRedis) RPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.key = key
	for _, v := range values {
		f.pushed = append(f.pushed, v.([]byte))
	}
	return redis.NewIntResult(int64(len(f.pushed)), nil)
}

type recordingDispatcher struct {
	got []Notification
	err error
}

func (r *recordingDispatcher) Dispatch(_ context.Context, n Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func testGroup() models.Group {
	adviser := uint(1)
	return models.Group{
		ID:        7,
		Name:      "Group A",
		AdviserID: &adviser,
		Panels:    []models.User{{ID: 2}, {ID: 1}},
		Members:   []models.GroupMembership{{UserID: 3}, {UserID: 4}},
	}
}

func TestScheduleCreatedRecipients(t *testing.T) {
	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	schedule := models.DefenseSchedule{ID: 42, GroupID: 7, StartAt: start, EndAt: start.Add(2 * time.Hour), Location: "Room 101"}

	n := ScheduleCreated(schedule, testGroup())

	assert.Equal(t, TypeScheduleCreated, n.Type)
	assert.Equal(t, []uint{1, 2, 3, 4}, n.UserIDs, "adviser listed once even if also on the panel")
	assert.Contains(t, n.Message, "Group A")
	assert.Contains(t, n.Message, "Room 101")
	assert.Equal(t, uint(42), n.Data["schedule_id"])
}

func TestRedisQueueDispatch(t *testing.T) {
	fake := &fakeRedis{}
	q := NewRedisQueue(fake, "")

	n := Notification{Type: TypeScheduleCreated, UserIDs: []uint{1}, Title: "t", Message: "m"}
	require.NoError(t, q.Dispatch(context.Background(), n))

	assert.Equal(t, DefaultQueueKey, fake.key)
	require.Len(t, fake.pushed, 1)

	var decoded Notification
	require.NoError(t, json.Unmarshal(fake.pushed[0], &decoded))
	assert.Equal(t, n.UserIDs, decoded.UserIDs)
	assert.Equal(t, "m", decoded.Message)
}

func TestRedisQueueSkipsEmptyRecipients(t *testing.T) {
	fake := &fakeRedis{}
	q := NewRedisQueue(fake, "custom")

	require.NoError(t, q.Dispatch(context.Background(), Notification{Type: TypeScheduleCreated}))
	assert.Empty(t, fake.pushed)
}

func TestRedisQueueError(t *testing.T) {
	q := NewRedisQueue(&fakeRedis{err: errors.New("connection refused")}, "")

	err := q.Dispatch(context.Background(), Notification{UserIDs: []uint{1}})
	assert.EqualError(t, err, "connection refused")
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recordingDispatcher{}
	failing := &recordingDispatcher{err: errors.New("boom")}

	err := Multi{ok, failing, LogDispatcher{}}.Dispatch(context.Background(), Notification{Message: "hello"})

	assert.ErrorContains(t, err, "boom")
	assert.Len(t, ok.got, 1)
	assert.Len(t, failing.got, 1)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Dispatch(context.Background(), Notification{}))
}
