package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"github.com/sirupsen/logrus"
)

// Notification types
const (
	TypeScheduleCreated = "schedule.created"
)

// Notification is a message addressed to a set of users. Delivery
// (email, push, in-app) belongs to whoever consumes it.
type Notification struct {
	Type      string                 `json:"type"`
	UserIDs   []uint                 `json:"user_ids"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Dispatcher hands notifications to a delivery channel
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// ScheduleCreated builds the notification sent when a defense is booked.
// The group must have its adviser, panel and members loaded.
func ScheduleCreated(schedule models.DefenseSchedule, group models.Group) Notification {
	seen := make(map[uint]struct{})
	var recipients []uint
	add := func(id uint) {
		if _, ok := seen[id]; ok || id == 0 {
			return
		}
		seen[id] = struct{}{}
		recipients = append(recipients, id)
	}
	for _, id := range group.ResourceIDs() {
		add(id)
	}
	for _, m := range group.Members {
		add(m.UserID)
	}

	const layout = "2006-01-02 15:04 MST"
	msg := fmt.Sprintf("Defense for %s scheduled from %s to %s", group.Name,
		schedule.StartAt.Format(layout), schedule.EndAt.Format(layout))
	if schedule.Location != "" {
		msg += " at " + schedule.Location
	}

	return Notification{
		Type:    TypeScheduleCreated,
		UserIDs: recipients,
		Title:   "Defense scheduled",
		Message: msg,
		Data: map[string]interface{}{
			"schedule_id": schedule.ID,
			"group_id":    group.ID,
			"start_at":    schedule.StartAt,
			"end_at":      schedule.EndAt,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// LogDispatcher only logs notifications. Used when no queue is configured.
type LogDispatcher struct {
	Logger *logrus.Entry
}

// Dispatch implements Dispatcher
func (d LogDispatcher) Dispatch(_ context.Context, n Notification) error {
	logger := d.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger.WithFields(logrus.Fields{
		"type":       n.Type,
		"recipients": len(n.UserIDs),
	}).Info(n.Message)
	return nil
}

// Multi fans a notification out to several dispatchers and joins their errors
type Multi []Dispatcher

// Dispatch implements Dispatcher
func (m Multi) Dispatch(ctx context.Context, n Notification) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards notifications
type Nop struct{}

// Dispatch implements Dispatcher
func (Nop) Dispatch(context.Context, Notification) error { return nil }
