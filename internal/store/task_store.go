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

const taskColumns = `t.id, t.account_id, t.kind, t.project, t.definition_id, t.environment_id,
	t.pipeline, t.environment, t.branch, t.owner, t.repo, t.pr_count,
	t.metric, t.aggregation, t.timespan, t.metric_start, t.metric_end,
	t.path, t.nickname, t.value, t.prev_value, t.has_changed, t.last_update,
	t.uses_webhook, t.created_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) insertTask(ctx context.Context, ex execer, t *model.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := ex.ExecContext(ctx, s.rebind(`
		INSERT INTO tasks (
			id, account_id, kind, natural_key,
			project, definition_id, environment_id, pipeline, environment, branch,
			owner, repo, pr_count,
			metric, aggregation, timespan, metric_start, metric_end,
			path, nickname,
			value, prev_value, has_changed, last_update, uses_webhook, created_at
		) VALUES (
			?, ?, ?, ?,
			?, ?, ?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?,
			?, ?, ?, ?, ?, ?
		)`),
		t.ID, t.AccountID, string(t.Kind), t.Key().String(),
		t.Project, t.DefinitionID, t.EnvironmentID, t.Pipeline, t.Environment, t.Branch,
		t.Owner, t.Repo, t.PRCount,
		t.Metric, t.Aggregation, t.Timespan, t.MetricStart, t.MetricEnd,
		t.Path, t.Nickname,
		t.Value, t.PrevValue, t.HasChanged, t.LastUpdate, t.UsesWebhook, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting task %s: %w", t.Key(), classify(err))
	}
	return nil
}

// CreateTask inserts a single task. A task whose natural key already exists
// in the account returns ErrDuplicate.
func (s *SQLStore) CreateTask(ctx context.Context, t model.Task) (*model.Task, error) {
	if err := s.insertTask(ctx, s.db, &t); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	return &t, nil
}

// DeleteTask removes a task. Light and message bindings are cleared.
func (s *SQLStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM tasks WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	return expectOne(res, "task", id)
}

// GetTask returns a single task by ID.
func (s *SQLStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var t model.Task
	err := s.db.GetContext(ctx, &t, s.rebind(
		"SELECT "+taskColumns+" FROM tasks t WHERE t.id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}
	return &t, nil
}

// ListTasks returns the tasks of one account in creation order.
func (s *SQLStore) ListTasks(ctx context.Context, accountID string) ([]model.Task, error) {
	var tasks []model.Task
	if err := s.db.SelectContext(ctx, &tasks, s.rebind(
		"SELECT "+taskColumns+" FROM tasks t WHERE t.account_id = ? ORDER BY t.created_at, t.id"),
		accountID); err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return tasks, nil
}

// ListTasksForUser returns the tasks of every account owned by a user.
func (s *SQLStore) ListTasksForUser(ctx context.Context, userID string) ([]model.Task, error) {
	var tasks []model.Task
	if err := s.db.SelectContext(ctx, &tasks, s.rebind(`
		SELECT `+taskColumns+`
		FROM tasks t
		JOIN accounts a ON a.id = t.account_id
		WHERE a.user_id = ?
		ORDER BY a.created_at, t.created_at, t.id`), userID); err != nil {
		return nil, fmt.Errorf("listing tasks for user: %w", err)
	}
	return tasks, nil
}

// TaskOwner returns the ID of the user owning a task.
func (s *SQLStore) TaskOwner(ctx context.Context, taskID string) (string, error) {
	var userID string
	err := s.db.GetContext(ctx, &userID, s.rebind(`
		SELECT a.user_id FROM tasks t JOIN accounts a ON a.id = t.account_id
		WHERE t.id = ?`), taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting task owner: %w", err)
	}
	return userID, nil
}

// UpdateTaskSettings changes the user-editable fields of a task.
func (s *SQLStore) UpdateTaskSettings(ctx context.Context, id string, settings TaskSettings) error {
	var sets []string
	var args []any
	if settings.UsesWebhook != nil {
		sets = append(sets, "uses_webhook = ?")
		args = append(args, *settings.UsesWebhook)
	}
	if settings.Nickname != nil {
		sets = append(sets, "nickname = ?")
		args = append(args, *settings.Nickname)
	}
	if settings.Branch != nil {
		sets = append(sets, "branch = ?")
		args = append(args, *settings.Branch)
	}
	if len(sets) == 0 {
		_, err := s.GetTask(ctx, id)
		return err
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, s.rebind(
		"UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ?"), args...)
	if err != nil {
		return fmt.Errorf("updating task settings: %w", err)
	}
	return expectOne(res, "task", id)
}

// ApplyTaskPlan applies a reconciliation to an account in one
// transaction. Either every add, remove and update commits or none does.
func (s *SQLStore) ApplyTaskPlan(ctx context.Context, accountID string, plan TaskPlan) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, id := range plan.Remove {
			res, err := tx.ExecContext(ctx, s.rebind(
				"DELETE FROM tasks WHERE id = ? AND account_id = ?"), id, accountID)
			if err != nil {
				return fmt.Errorf("removing task %s: %w", id, err)
			}
			if err := expectOne(res, "task", id); err != nil {
				return err
			}
		}

		for _, t := range plan.Update {
			res, err := tx.ExecContext(ctx, s.rebind(`
				UPDATE tasks SET
					pipeline = ?, environment = ?, branch = ?, nickname = ?, uses_webhook = ?
				WHERE id = ? AND account_id = ?`),
				t.Pipeline, t.Environment, t.Branch, t.Nickname, t.UsesWebhook,
				t.ID, accountID,
			)
			if err != nil {
				return fmt.Errorf("updating task %s: %w", t.ID, err)
			}
			if err := expectOne(res, "task", t.ID); err != nil {
				return err
			}
		}

		for i := range plan.Add {
			t := plan.Add[i]
			t.AccountID = accountID
			if err := s.insertTask(ctx, tx, &t); err != nil {
				return err
			}
		}
		return nil
	})
}

// CommitTaskValues writes the observed state of tasks belonging to one
// account in a single transaction. Tasks of other accounts, and tasks
// removed since they were read, are skipped.
//
// The change columns (prev_value, has_changed, last_update) move only when
// the stored value differs from the observed one, so a has_changed cleared
// after the tasks were read survives a commit that observes no change.
func (s *SQLStore) CommitTaskValues(ctx context.Context, accountID string, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, s.rebind(`
			UPDATE tasks SET
				prev_value  = CASE WHEN value = ? THEN prev_value ELSE value END,
				has_changed = CASE WHEN value = ? THEN has_changed ELSE TRUE END,
				last_update = CASE WHEN value = ? THEN last_update ELSE ? END,
				value = ?,
				pr_count = ?, metric_start = ?, metric_end = ?
			WHERE id = ? AND account_id = ?`))
		if err != nil {
			return fmt.Errorf("preparing value update: %w", err)
		}
		defer stmt.Close()

		for _, t := range tasks {
			if _, err := stmt.ExecContext(ctx,
				t.Value, t.Value, t.Value, t.LastUpdate,
				t.Value,
				t.PRCount, t.MetricStart, t.MetricEnd,
				t.ID, accountID,
			); err != nil {
				return fmt.Errorf("writing value of task %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// MarkTasksViewed clears has_changed on the given tasks of a user, or on
// all of the user's tasks when taskIDs is empty. It returns the number of
// tasks cleared.
func (s *SQLStore) MarkTasksViewed(ctx context.Context, userID string, taskIDs []string) (int64, error) {
	query := `
		UPDATE tasks SET has_changed = ?
		WHERE has_changed = ?
		  AND account_id IN (SELECT id FROM accounts WHERE user_id = ?)`
	args := []any{false, true, userID}

	if len(taskIDs) > 0 {
		in, inArgs, err := sqlx.In(" AND id IN (?)", taskIDs)
		if err != nil {
			return 0, fmt.Errorf("building id list: %w", err)
		}
		query += in
		args = append(args, inArgs...)
	}

	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("marking tasks viewed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// MarkTasksSeen clears has_changed on tasks of a user whose value is still
// the one in seen, keyed by task ID. A task that changed after it was read
// keeps its flag. It returns the number of tasks cleared.
func (s *SQLStore) MarkTasksSeen(ctx context.Context, userID string, seen map[string]string) (int64, error) {
	if len(seen) == 0 {
		return 0, nil
	}

	var cleared int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, s.rebind(`
			UPDATE tasks SET has_changed = ?
			WHERE id = ? AND value = ? AND has_changed = ?
			  AND account_id IN (SELECT id FROM accounts WHERE user_id = ?)`))
		if err != nil {
			return fmt.Errorf("preparing seen update: %w", err)
		}
		defer stmt.Close()

		for id, value := range seen {
			res, err := stmt.ExecContext(ctx, false, id, value, true, userID)
			if err != nil {
				return fmt.Errorf("marking task %s seen: %w", id, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("checking rows affected: %w", err)
			}
			cleared += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return cleared, nil
}
