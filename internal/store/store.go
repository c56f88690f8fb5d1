package store

import (
	"context"
	"errors"

	"github.com/nhle/ambrose/internal/model"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique constraint is violated, such
	// as a second task with the same natural key in one account.
	ErrDuplicate = errors.New("duplicate")
)

// TaskPlan is a reconciliation applied to one account's tasks.
type TaskPlan struct {
	// Add holds new tasks. IDs are generated when empty.
	Add []model.Task
	// Remove holds IDs of tasks to delete.
	Remove []string
	// Update holds stored tasks whose descriptive fields and webhook flag
	// are rewritten.
	Update []model.Task
}

// TaskSettings holds the user-editable fields of a task. Nil fields are
// left unchanged.
type TaskSettings struct {
	UsesWebhook *bool
	Nickname    *string
	Branch      *string
}

// Store defines the persistence interface for users, accounts, tasks and
// the display entities that consume task state.
type Store interface {
	// === Users ===

	CreateUser(ctx context.Context, user model.User) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)

	// === Accounts ===

	CreateAccount(ctx context.Context, account model.Account) (*model.Account, error)
	UpdateAccount(ctx context.Context, account model.Account) error
	DeleteAccount(ctx context.Context, id string) error
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	ListAccountsForUser(ctx context.Context, userID string) ([]model.Account, error)

	// === Tasks ===

	CreateTask(ctx context.Context, task model.Task) (*model.Task, error)
	DeleteTask(ctx context.Context, id string) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, accountID string) ([]model.Task, error)
	ListTasksForUser(ctx context.Context, userID string) ([]model.Task, error)
	TaskOwner(ctx context.Context, taskID string) (string, error)
	UpdateTaskSettings(ctx context.Context, id string, settings TaskSettings) error
	ApplyTaskPlan(ctx context.Context, accountID string, plan TaskPlan) error
	CommitTaskValues(ctx context.Context, accountID string, tasks []model.Task) error
	MarkTasksViewed(ctx context.Context, userID string, taskIDs []string) (int64, error)
	MarkTasksSeen(ctx context.Context, userID string, seen map[string]string) (int64, error)

	// === Status colors ===

	SetStatusColor(ctx context.Context, userID, status string, color model.Color) error
	DeleteStatusColor(ctx context.Context, userID, status string) error
	ListStatusColors(ctx context.Context, userID string) ([]model.StatusColor, error)

	// === Devices and lights ===

	CreateDevice(ctx context.Context, device model.Device, slots int) (*model.Device, error)
	GetDevice(ctx context.Context, id string) (*model.Device, error)
	GetDeviceByUUID(ctx context.Context, uuid string) (*model.Device, error)
	ListDevices(ctx context.Context, userID string) ([]model.Device, error)
	DeleteDevice(ctx context.Context, id string) error
	TouchDevice(ctx context.Context, id string) error
	SetLight(ctx context.Context, deviceID string, slot int, taskID *string) error
	ListLights(ctx context.Context, deviceID string) ([]model.StatusLight, error)

	// === Messages ===

	CreateMessage(ctx context.Context, msg model.Message) (*model.Message, error)
	UpdateMessage(ctx context.Context, msg model.Message) error
	DeleteMessage(ctx context.Context, id string) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	ListMessages(ctx context.Context, userID string) ([]model.Message, error)

	// === Gauges ===

	CreateGauge(ctx context.Context, gauge model.Gauge) (*model.Gauge, error)
	DeleteGauge(ctx context.Context, id string) error
	ListGauges(ctx context.Context, userID string) ([]model.Gauge, error)

	Close() error
}
