package notify

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/tgienger/duetask/internal/deeplink"
	"github.com/tgienger/duetask/internal/models"
)

// InvalidNotificationID marks a wake-up that lost its notification ID
const InvalidNotificationID = -1

const (
	reminderTitle = "Task Reminder"
	reminderBody  = "It's time to complete your task!"
)

// TaskReader is the read path the receiver needs from the store
type TaskReader interface {
	GetTask(ctx context.Context, id int64) (*models.Task, error)
}

// Receiver turns fired alarms into alerts. It depends on nothing but the
// store's read path and the emitter, so it can run with no UI alive.
type Receiver struct {
	tasks   TaskReader
	emitter *Emitter
	log     *log.Logger
}

// NewReceiver creates a Receiver
func NewReceiver(tasks TaskReader, emitter *Emitter, logger *log.Logger) *Receiver {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Receiver{
		tasks:   tasks,
		emitter: emitter,
		log:     logger.WithPrefix("receiver"),
	}
}

// OnAlarm handles a fired reminder
func (r *Receiver) OnAlarm(ctx context.Context, a models.Alarm) {
	if a.NotificationID == InvalidNotificationID {
		r.log.Warn("alarm without notification id")
		return
	}

	body := reminderBody
	link := deeplink.Link{Target: deeplink.TaskDetail}
	if a.TaskID != nil {
		task, err := r.tasks.GetTask(ctx, *a.TaskID)
		if err != nil {
			// The task may have been deleted since; remind generically
			r.log.Debug("reminder task not found", "task_id", *a.TaskID, "err", err)
		} else {
			link = deeplink.FromTask(*task)
			body = task.Title + ": " + reminderBody
		}
	}

	r.emitter.Emit(a.NotificationID, reminderTitle, body, link)
}
