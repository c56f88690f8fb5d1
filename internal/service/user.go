package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/ambrose/internal/message"
	"github.com/nhle/ambrose/internal/model"
	"github.com/nhle/ambrose/internal/signal"
	"github.com/nhle/ambrose/internal/store"
)

// TaskView is the read model of a task.
type TaskView struct {
	ID          string         `json:"id"`
	AccountID   string         `json:"account_id"`
	Name        string         `json:"name"`
	Kind        model.TaskKind `json:"kind"`
	Value       string         `json:"value"`
	PrevValue   string         `json:"prev_value"`
	HasChanged  bool           `json:"has_changed"`
	LastUpdate  *time.Time     `json:"last_update"`
	UsesWebhook bool           `json:"uses_webhook"`
}

// NewTaskView projects a task.
func NewTaskView(t model.Task) TaskView {
	return TaskView{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Name:        t.Name(),
		Kind:        t.Kind,
		Value:       t.Value,
		PrevValue:   t.PrevValue,
		HasChanged:  t.HasChanged,
		LastUpdate:  t.LastUpdate,
		UsesWebhook: t.UsesWebhook,
	}
}

// Light is the display instruction for one device slot.
type Light struct {
	Slot   int                      `json:"slot"`
	TaskID *string                  `json:"task_id"`
	Light  model.LightConfiguration `json:"light"`
}

// GaugeView is a gauge with its current position.
type GaugeView struct {
	model.Gauge
	Value    string  `json:"value"`
	Position float64 `json:"position"`
}

// UserService serves the per-user views: tasks, lights, messages and
// gauges.
type UserService struct {
	store store.Store
	now   func() time.Time
}

// UserOption configures a UserService.
type UserOption func(*UserService)

// WithUserClock sets the clock datetime messages render against.
func WithUserClock(now func() time.Time) UserOption {
	return func(s *UserService) { s.now = now }
}

// NewUserService creates a UserService.
func NewUserService(st store.Store, opts ...UserOption) *UserService {
	s := &UserService{store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUser registers a user.
func (s *UserService) CreateUser(ctx context.Context, username string) (*model.User, error) {
	u, err := s.store.CreateUser(ctx, model.User{Username: strings.TrimSpace(username)})
	return u, translate(err)
}

// UserByName looks a user up by username.
func (s *UserService) UserByName(ctx context.Context, username string) (*model.User, error) {
	u, err := s.store.GetUserByUsername(ctx, username)
	return u, translate(err)
}

// Tasks returns every task of the user.
func (s *UserService) Tasks(ctx context.Context, userID string) ([]TaskView, error) {
	tasks, err := s.store.ListTasksForUser(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, NewTaskView(t))
	}
	return views, nil
}

// Task returns a task owned by the user.
func (s *UserService) Task(ctx context.Context, userID, taskID string) (*model.Task, error) {
	if err := s.checkTask(ctx, userID, taskID); err != nil {
		return nil, err
	}
	t, err := s.store.GetTask(ctx, taskID)
	return t, translate(err)
}

// UpdateTask changes the editable settings of a task.
func (s *UserService) UpdateTask(ctx context.Context, userID, taskID string, settings store.TaskSettings) (*model.Task, error) {
	if err := s.checkTask(ctx, userID, taskID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateTaskSettings(ctx, taskID, settings); err != nil {
		return nil, translate(err)
	}
	t, err := s.store.GetTask(ctx, taskID)
	return t, translate(err)
}

// DeleteTask stops monitoring a task.
func (s *UserService) DeleteTask(ctx context.Context, userID, taskID string) error {
	if err := s.checkTask(ctx, userID, taskID); err != nil {
		return err
	}
	return translate(s.store.DeleteTask(ctx, taskID))
}

// MarkViewed clears has_changed on the given tasks, or on all the user's
// tasks when none are given. Value history is untouched.
func (s *UserService) MarkViewed(ctx context.Context, userID string, taskIDs []string) (int64, error) {
	for _, id := range taskIDs {
		if err := s.checkTask(ctx, userID, id); err != nil {
			return 0, err
		}
	}
	n, err := s.store.MarkTasksViewed(ctx, userID, taskIDs)
	return n, translate(err)
}

func (s *UserService) checkTask(ctx context.Context, userID, taskID string) error {
	owner, err := s.store.TaskOwner(ctx, taskID)
	if err != nil {
		return translate(err)
	}
	if owner != userID {
		return fmt.Errorf("task %s: %w", taskID, ErrUnauthorized)
	}
	return nil
}

// === Status colors ===

// SetStatusColor sets the color a status shows on the user's lights.
func (s *UserService) SetStatusColor(ctx context.Context, userID, status string, c model.Color) error {
	if strings.TrimSpace(status) == "" {
		return invalid("status must not be empty")
	}
	return translate(s.store.SetStatusColor(ctx, userID, status, c))
}

// DeleteStatusColor removes a status color.
func (s *UserService) DeleteStatusColor(ctx context.Context, userID, status string) error {
	return translate(s.store.DeleteStatusColor(ctx, userID, status))
}

// StatusColors lists the user's status colors.
func (s *UserService) StatusColors(ctx context.Context, userID string) ([]model.StatusColor, error) {
	colors, err := s.store.ListStatusColors(ctx, userID)
	return colors, translate(err)
}

// === Devices ===

// CreateDevice registers a device with slots empty lights.
func (s *UserService) CreateDevice(ctx context.Context, userID, name string, slots int) (*model.Device, error) {
	if slots < 1 {
		return nil, invalid("a device needs at least one slot")
	}
	d, err := s.store.CreateDevice(ctx, model.Device{UserID: userID, Name: strings.TrimSpace(name)}, slots)
	return d, translate(err)
}

// Devices lists the user's devices.
func (s *UserService) Devices(ctx context.Context, userID string) ([]model.Device, error) {
	devices, err := s.store.ListDevices(ctx, userID)
	return devices, translate(err)
}

// DeleteDevice removes a device.
func (s *UserService) DeleteDevice(ctx context.Context, userID, deviceID string) error {
	if _, err := s.ownedDevice(ctx, userID, deviceID); err != nil {
		return err
	}
	return translate(s.store.DeleteDevice(ctx, deviceID))
}

// AssignLight binds a slot to a task of the user, or clears it when
// taskID is nil.
func (s *UserService) AssignLight(ctx context.Context, userID, deviceID string, slot int, taskID *string) error {
	if _, err := s.ownedDevice(ctx, userID, deviceID); err != nil {
		return err
	}
	if taskID != nil {
		if err := s.checkTask(ctx, userID, *taskID); err != nil {
			return err
		}
	}
	return translate(s.store.SetLight(ctx, deviceID, slot, taskID))
}

// DeviceLights returns the light configuration of every slot of a device
// owned by the user.
func (s *UserService) DeviceLights(ctx context.Context, userID, deviceID string) ([]Light, error) {
	device, err := s.ownedDevice(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}
	lights, _, err := s.lights(ctx, device)
	return lights, err
}

// MarkDeviceVisit serves a device polling for its lights by UUID. It
// records the contact, returns the lights, and clears has_changed on the
// tasks shown so the next visit sees them settled. A task whose value
// moved after the lights were computed keeps its flag.
func (s *UserService) MarkDeviceVisit(ctx context.Context, deviceUUID string) ([]Light, error) {
	device, err := s.store.GetDeviceByUUID(ctx, deviceUUID)
	if err != nil {
		return nil, translate(err)
	}
	lights, shown, err := s.lights(ctx, device)
	if err != nil {
		return nil, err
	}
	if err := s.store.TouchDevice(ctx, device.ID); err != nil {
		return nil, translate(err)
	}
	if len(shown) > 0 {
		if _, err := s.store.MarkTasksSeen(ctx, device.UserID, shown); err != nil {
			return nil, translate(err)
		}
	}
	return lights, nil
}

func (s *UserService) lights(ctx context.Context, device *model.Device) ([]Light, map[string]string, error) {
	slots, err := s.store.ListLights(ctx, device.ID)
	if err != nil {
		return nil, nil, translate(err)
	}
	colors, err := s.store.ListStatusColors(ctx, device.UserID)
	if err != nil {
		return nil, nil, translate(err)
	}
	engine := signal.NewEngine(signal.NewPalette(colors))

	tasks, err := s.taskIndex(ctx, device.UserID)
	if err != nil {
		return nil, nil, err
	}

	out := make([]Light, 0, len(slots))
	shown := map[string]string{}
	for _, sl := range slots {
		var task *model.Task
		if sl.TaskID != nil {
			if t, ok := tasks[*sl.TaskID]; ok {
				task = &t
				shown[t.ID] = t.Value
			}
		}
		out = append(out, Light{Slot: sl.Slot, TaskID: sl.TaskID, Light: engine.Light(task)})
	}
	return out, shown, nil
}

func (s *UserService) ownedDevice(ctx context.Context, userID, deviceID string) (*model.Device, error) {
	d, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, translate(err)
	}
	if d.UserID != userID {
		return nil, fmt.Errorf("device %s: %w", deviceID, ErrUnauthorized)
	}
	return d, nil
}

func (s *UserService) taskIndex(ctx context.Context, userID string) (map[string]model.Task, error) {
	tasks, err := s.store.ListTasksForUser(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	idx := make(map[string]model.Task, len(tasks))
	for _, t := range tasks {
		idx[t.ID] = t
	}
	return idx, nil
}

// === Messages ===

// CreateMessage validates and stores a message. Bare {} placeholders are
// rewritten to the first variable of the kind.
func (s *UserService) CreateMessage(ctx context.Context, userID string, m model.Message) (*model.Message, error) {
	m.UserID = userID
	m.Text = message.Normalize(m.Kind, m.Text)
	if m.Kind == model.MessageDateTime && m.DateFormat == "" {
		m.DateFormat = message.DefaultDateFormat
	}
	m.Choices = nonEmpty(m.Choices)
	if err := message.Validate(m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if m.TaskID != nil {
		if err := s.checkTask(ctx, userID, *m.TaskID); err != nil {
			return nil, err
		}
	}
	created, err := s.store.CreateMessage(ctx, m)
	return created, translate(err)
}

// UpdateMessage rewrites a message of the user.
func (s *UserService) UpdateMessage(ctx context.Context, userID string, m model.Message) error {
	current, err := s.ownedMessage(ctx, userID, m.ID)
	if err != nil {
		return err
	}
	m.UserID = userID
	m.Kind = current.Kind
	m.Text = message.Normalize(m.Kind, m.Text)
	m.Choices = nonEmpty(m.Choices)
	if err := message.Validate(m); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return translate(s.store.UpdateMessage(ctx, m))
}

// DeleteMessage removes a message of the user.
func (s *UserService) DeleteMessage(ctx context.Context, userID, messageID string) error {
	if _, err := s.ownedMessage(ctx, userID, messageID); err != nil {
		return err
	}
	return translate(s.store.DeleteMessage(ctx, messageID))
}

// Messages lists the user's messages.
func (s *UserService) Messages(ctx context.Context, userID string) ([]model.Message, error) {
	msgs, err := s.store.ListMessages(ctx, userID)
	return msgs, translate(err)
}

// RenderMessage returns the display text of a message of the user.
func (s *UserService) RenderMessage(ctx context.Context, userID, messageID string) (string, error) {
	m, err := s.ownedMessage(ctx, userID, messageID)
	if err != nil {
		return "", err
	}
	var task *model.Task
	if m.Kind == model.MessageTask && m.TaskID != nil {
		t, err := s.store.GetTask(ctx, *m.TaskID)
		if err == nil {
			task = t
		} else if err = translate(err); !isNotFound(err) {
			return "", err
		}
	}
	return message.Render(*m, task, s.now()), nil
}

func (s *UserService) ownedMessage(ctx context.Context, userID, messageID string) (*model.Message, error) {
	m, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, translate(err)
	}
	if m.UserID != userID {
		return nil, fmt.Errorf("message %s: %w", messageID, ErrUnauthorized)
	}
	return m, nil
}

// === Gauges ===

// CreateGauge stores a gauge over [min, max] bound to a task of the user.
func (s *UserService) CreateGauge(ctx context.Context, userID string, g model.Gauge) (*model.Gauge, error) {
	if g.Max <= g.Min {
		return nil, invalid("gauge max %v must exceed min %v", g.Max, g.Min)
	}
	if g.TaskID != nil {
		if err := s.checkTask(ctx, userID, *g.TaskID); err != nil {
			return nil, err
		}
	}
	g.UserID = userID
	created, err := s.store.CreateGauge(ctx, g)
	return created, translate(err)
}

// DeleteGauge removes a gauge of the user.
func (s *UserService) DeleteGauge(ctx context.Context, userID, gaugeID string) error {
	gauges, err := s.store.ListGauges(ctx, userID)
	if err != nil {
		return translate(err)
	}
	for _, g := range gauges {
		if g.ID == gaugeID {
			return translate(s.store.DeleteGauge(ctx, gaugeID))
		}
	}
	return fmt.Errorf("gauge %s: %w", gaugeID, ErrNotFound)
}

// Gauges returns the user's gauges with their current positions.
func (s *UserService) Gauges(ctx context.Context, userID string) ([]GaugeView, error) {
	gauges, err := s.store.ListGauges(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	tasks, err := s.taskIndex(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]GaugeView, 0, len(gauges))
	for _, g := range gauges {
		v := GaugeView{Gauge: g}
		if g.TaskID != nil {
			if t, ok := tasks[*g.TaskID]; ok {
				v.Value = t.Value
				v.Position = g.Position(t.Value)
			}
		}
		views = append(views, v)
	}
	return views, nil
}

func nonEmpty(in model.StringList) model.StringList {
	out := model.StringList{}
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
