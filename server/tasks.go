package server

import (
	"context"
	"net/http"

	"github.com/existflow/collabtask/internal/model"
	"github.com/labstack/echo/v4"
)

// handleListTasks returns every task, newest first
func (s *Server) handleListTasks(c echo.Context) error {
	items, err := s.mutations.ListItems(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (s *Server) handleGetTask(c echo.Context) error {
	id, err := taskID(c)
	if err != nil {
		return err
	}
	item, err := s.mutations.GetItem(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

// handleCreateTask stores a task and broadcasts it
func (s *Server) handleCreateTask(c echo.Context) error {
	var f model.Fields
	if err := c.Bind(&f); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	item, err := s.mutations.CreateItem(writeContext(c), f, connectionID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, item)
}

// handleUpdateTask overwrites a task and broadcasts it
func (s *Server) handleUpdateTask(c echo.Context) error {
	id, err := taskID(c)
	if err != nil {
		return err
	}

	var f model.Fields
	if err := c.Bind(&f); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	item, err := s.mutations.UpdateItem(writeContext(c), id, f, connectionID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

// handleDeleteTask removes a task; unknown ids succeed too
func (s *Server) handleDeleteTask(c echo.Context) error {
	id, err := taskID(c)
	if err != nil {
		return err
	}

	if err := s.mutations.DeleteItem(writeContext(c), id, connectionID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message": "task deleted",
		"id":      id,
	})
}

// handleListUsers returns who is connected
func (s *Server) handleListUsers(c echo.Context) error {
	return c.JSON(http.StatusOK, s.presence.Snapshot())
}

// writeContext keeps request values but survives a client hang-up, so a
// started write always completes and broadcasts
func writeContext(c echo.Context) context.Context {
	return context.WithoutCancel(c.Request().Context())
}
