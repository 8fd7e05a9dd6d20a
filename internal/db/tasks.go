package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/existflow/collabtask/internal/model"
)

const taskColumns = `id, title, description, status, priority, assigned_user, user_color, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (model.Item, error) {
	var item model.Item
	var createdAt int64
	err := row.Scan(&item.ID, &item.Title, &item.Description, &item.Status,
		&item.Priority, &item.AssignedUser, &item.UserColor, &createdAt)
	if err != nil {
		return model.Item{}, err
	}
	item.CreatedAt = time.Unix(0, createdAt).UTC()
	return item, nil
}

// validate applies defaults and checks the fields of a create or update
func validate(f model.Fields) (model.Fields, error) {
	f = f.WithDefaults()
	if f.Title == "" {
		return f, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !f.Status.Valid() {
		return f, fmt.Errorf("%w: invalid status %q", ErrValidation, f.Status)
	}
	if !f.Priority.Valid() {
		return f, fmt.Errorf("%w: invalid priority %q", ErrValidation, f.Priority)
	}
	return f, nil
}

// ListTasks returns all tasks, newest first
func (db *DB) ListTasks(ctx context.Context) ([]model.Item, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, unavailable("list tasks", err)
	}
	defer rows.Close()

	items := []model.Item{}
	for rows.Next() {
		item, err := scanTask(rows)
		if err != nil {
			return nil, unavailable("scan task", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list tasks", err)
	}
	return items, nil
}

// GetTask returns a single task
func (db *DB) GetTask(ctx context.Context, id int64) (model.Item, error) {
	row := db.QueryRowContext(ctx,
		db.rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id)
	item, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Item{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return model.Item{}, unavailable("get task", err)
	}
	return item, nil
}

// CreateTask inserts a task and returns the stored row
func (db *DB) CreateTask(ctx context.Context, f model.Fields) (model.Item, error) {
	f, err := validate(f)
	if err != nil {
		return model.Item{}, err
	}

	db.createMu.Lock()
	defer db.createMu.Unlock()

	createdAt := db.now().UTC()
	if createdAt.Before(db.lastCreated) {
		createdAt = db.lastCreated
	}

	row := db.QueryRowContext(ctx, db.rebind(`
		INSERT INTO tasks (title, description, status, priority, assigned_user, user_color, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING `+taskColumns),
		f.Title, f.Description, string(f.Status), string(f.Priority),
		f.AssignedUser, f.UserColor, createdAt.UnixNano(),
	)
	item, err := scanTask(row)
	if err != nil {
		return model.Item{}, unavailable("create task", err)
	}

	db.lastCreated = createdAt
	return item, nil
}

// UpdateTask overwrites every mutable field of a task. Last write wins.
func (db *DB) UpdateTask(ctx context.Context, id int64, f model.Fields) (model.Item, error) {
	f, err := validate(f)
	if err != nil {
		return model.Item{}, err
	}

	row := db.QueryRowContext(ctx, db.rebind(`
		UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?,
			assigned_user = ?, user_color = ?
		WHERE id = ?
		RETURNING `+taskColumns),
		f.Title, f.Description, string(f.Status), string(f.Priority),
		f.AssignedUser, f.UserColor, id,
	)
	item, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Item{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return model.Item{}, unavailable("update task", err)
	}
	return item, nil
}

// DeleteTask removes a task. Deleting a missing id is not an error;
// the bool reports whether a row was removed.
func (db *DB) DeleteTask(ctx context.Context, id int64) (bool, error) {
	res, err := db.ExecContext(ctx, db.rebind(`DELETE FROM tasks WHERE id = ?`), id)
	if err != nil {
		return false, unavailable("delete task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("delete task", err)
	}
	return n > 0, nil
}
