package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/ambrose/internal/model"
)

// SetStatusColor creates or replaces the color a user shows for a status.
// Statuses are stored lowercased.
func (s *SQLStore) SetStatusColor(ctx context.Context, userID, status string, color model.Color) error {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return errors.New("status must not be empty")
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO status_colors (id, user_id, status, red, green, blue)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, status) DO UPDATE SET
			red = excluded.red, green = excluded.green, blue = excluded.blue`),
		uuid.New().String(), userID, status, int(color.R), int(color.G), int(color.B),
	)
	if err != nil {
		return fmt.Errorf("setting status color: %w", classify(err))
	}
	return nil
}

// DeleteStatusColor removes a user's color for a status.
func (s *SQLStore) DeleteStatusColor(ctx context.Context, userID, status string) error {
	status = strings.ToLower(strings.TrimSpace(status))
	res, err := s.db.ExecContext(ctx, s.rebind(
		"DELETE FROM status_colors WHERE user_id = ? AND status = ?"), userID, status)
	if err != nil {
		return fmt.Errorf("deleting status color: %w", err)
	}
	return expectOne(res, "status color", status)
}

// ListStatusColors returns a user's color settings ordered by status.
func (s *SQLStore) ListStatusColors(ctx context.Context, userID string) ([]model.StatusColor, error) {
	var colors []model.StatusColor
	if err := s.db.SelectContext(ctx, &colors, s.rebind(`
		SELECT id, user_id, status, red, green, blue
		FROM status_colors WHERE user_id = ? ORDER BY status`), userID); err != nil {
		return nil, fmt.Errorf("listing status colors: %w", err)
	}
	return colors, nil
}

const deviceColumns = "id, uuid, user_id, name, last_contact, created_at"

// CreateDevice inserts a device together with slots empty light slots.
func (s *SQLStore) CreateDevice(ctx context.Context, d model.Device, slots int) (*model.Device, error) {
	if slots < 0 {
		return nil, fmt.Errorf("slot count must not be negative, got %d", slots)
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.UUID == "" {
		d.UUID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO devices (id, uuid, user_id, name, last_contact, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`),
			d.ID, d.UUID, d.UserID, d.Name, d.LastContact, d.CreatedAt,
		); err != nil {
			return classify(err)
		}
		for slot := 0; slot < slots; slot++ {
			if _, err := tx.ExecContext(ctx, s.rebind(
				"INSERT INTO status_lights (device_id, slot, task_id) VALUES (?, ?, NULL)"),
				d.ID, slot); err != nil {
				return fmt.Errorf("adding slot %d: %w", slot, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating device: %w", err)
	}
	return &d, nil
}

// GetDevice returns a device by ID.
func (s *SQLStore) GetDevice(ctx context.Context, id string) (*model.Device, error) {
	return s.getDevice(ctx, "id", id)
}

// GetDeviceByUUID returns a device by the UUID it identifies itself with.
func (s *SQLStore) GetDeviceByUUID(ctx context.Context, deviceUUID string) (*model.Device, error) {
	return s.getDevice(ctx, "uuid", deviceUUID)
}

func (s *SQLStore) getDevice(ctx context.Context, column, value string) (*model.Device, error) {
	var d model.Device
	err := s.db.GetContext(ctx, &d, s.rebind(
		"SELECT "+deviceColumns+" FROM devices WHERE "+column+" = ?"), value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("device %s: %w", value, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting device: %w", err)
	}
	return &d, nil
}

// ListDevices returns a user's devices.
func (s *SQLStore) ListDevices(ctx context.Context, userID string) ([]model.Device, error) {
	var devices []model.Device
	if err := s.db.SelectContext(ctx, &devices, s.rebind(
		"SELECT "+deviceColumns+" FROM devices WHERE user_id = ? ORDER BY created_at, id"),
		userID); err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return devices, nil
}

// DeleteDevice removes a device and its light slots.
func (s *SQLStore) DeleteDevice(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM devices WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return expectOne(res, "device", id)
}

// TouchDevice records that the device fetched its lights.
func (s *SQLStore) TouchDevice(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		"UPDATE devices SET last_contact = ? WHERE id = ?"), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touching device: %w", err)
	}
	return expectOne(res, "device", id)
}

// SetLight binds a slot to a task, or unbinds it when taskID is nil.
func (s *SQLStore) SetLight(ctx context.Context, deviceID string, slot int, taskID *string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		"UPDATE status_lights SET task_id = ? WHERE device_id = ? AND slot = ?"),
		taskID, deviceID, slot)
	if err != nil {
		return fmt.Errorf("setting light: %w", err)
	}
	return expectOne(res, "light", fmt.Sprintf("%s/%d", deviceID, slot))
}

// ListLights returns the slots of a device in slot order.
func (s *SQLStore) ListLights(ctx context.Context, deviceID string) ([]model.StatusLight, error) {
	var lights []model.StatusLight
	if err := s.db.SelectContext(ctx, &lights, s.rebind(
		"SELECT device_id, slot, task_id FROM status_lights WHERE device_id = ? ORDER BY slot"),
		deviceID); err != nil {
		return nil, fmt.Errorf("listing lights: %w", err)
	}
	return lights, nil
}

const gaugeColumns = "id, user_id, name, min_value, max_value, task_id"

// CreateGauge inserts a gauge.
func (s *SQLStore) CreateGauge(ctx context.Context, g model.Gauge) (*model.Gauge, error) {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(
		"INSERT INTO gauges ("+gaugeColumns+") VALUES (?, ?, ?, ?, ?, ?)"),
		g.ID, g.UserID, g.Name, g.Min, g.Max, g.TaskID,
	); err != nil {
		return nil, fmt.Errorf("creating gauge: %w", classify(err))
	}
	return &g, nil
}

// DeleteGauge removes a gauge.
func (s *SQLStore) DeleteGauge(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM gauges WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("deleting gauge: %w", err)
	}
	return expectOne(res, "gauge", id)
}

// ListGauges returns a user's gauges ordered by name.
func (s *SQLStore) ListGauges(ctx context.Context, userID string) ([]model.Gauge, error) {
	var gauges []model.Gauge
	if err := s.db.SelectContext(ctx, &gauges, s.rebind(
		"SELECT "+gaugeColumns+" FROM gauges WHERE user_id = ? ORDER BY name, id"),
		userID); err != nil {
		return nil, fmt.Errorf("listing gauges: %w", err)
	}
	return gauges, nil
}
