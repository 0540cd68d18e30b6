package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"primetrade-api/domain"
)

const msgTaskNotFound = "Task not found"

type taskHandlers struct {
	svc    domain.TaskService
	logger *log.Logger
}

func (h taskHandlers) list(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return writeError(c, h.logger, errorMessages{}, err)
	}
	params := domain.ListParams{
		Status:   c.QueryParam("status"),
		Priority: c.QueryParam("priority"),
		Search:   c.QueryParam("search"),
		SortBy:   c.QueryParam("sortBy"),
		Order:    c.QueryParam("order"),
	}

	m := metricsFrom(c)
	start := time.Now()
	tasks, err := h.svc.List(c.Request().Context(), id.UserID, params)
	m.ObserveStore(time.Since(start))
	if err != nil {
		m.SetErrorStage("store")
		return writeError(c, h.logger, errorMessages{internal: "Server error fetching tasks"}, err)
	}
	m.SetTasksReturned(len(tasks))
	count := len(tasks)
	return c.JSON(http.StatusOK, dataResponse{Success: true, Count: &count, Data: tasks})
}

func (h taskHandlers) get(c echo.Context) error {
	msgs := errorMessages{
		notFound:  msgTaskNotFound,
		forbidden: "Not authorized to access this task",
		internal:  "Server error fetching task",
	}
	id, err := identity(c)
	if err != nil {
		return writeError(c, h.logger, msgs, err)
	}

	m := metricsFrom(c)
	start := time.Now()
	task, err := h.svc.Get(c.Request().Context(), id.UserID, c.Param("id"))
	m.ObserveStore(time.Since(start))
	if err != nil {
		m.SetErrorStage("store")
		return writeError(c, h.logger, msgs, err)
	}
	return ok(c, http.StatusOK, task)
}

func (h taskHandlers) create(c echo.Context) error {
	msgs := errorMessages{internal: "Server error creating task"}
	id, err := identity(c)
	if err != nil {
		return writeError(c, h.logger, msgs, err)
	}
	var in domain.TaskInput
	if err := decodeBody(c, &in); err != nil {
		return bodyError(c, err)
	}

	m := metricsFrom(c)
	start := time.Now()
	task, err := h.svc.Create(c.Request().Context(), id.UserID, in)
	m.ObserveStore(time.Since(start))
	if err != nil {
		m.SetErrorStage("create")
		return writeError(c, h.logger, msgs, err)
	}
	return ok(c, http.StatusCreated, task)
}

func (h taskHandlers) update(c echo.Context) error {
	msgs := errorMessages{
		notFound:  msgTaskNotFound,
		forbidden: "Not authorized to update this task",
		internal:  "Server error updating task",
	}
	id, err := identity(c)
	if err != nil {
		return writeError(c, h.logger, msgs, err)
	}
	var in domain.TaskInput
	if err := decodeBody(c, &in); err != nil {
		return bodyError(c, err)
	}

	m := metricsFrom(c)
	start := time.Now()
	task, err := h.svc.Update(c.Request().Context(), id.UserID, c.Param("id"), in)
	m.ObserveStore(time.Since(start))
	if err != nil {
		m.SetErrorStage("update")
		return writeError(c, h.logger, msgs, err)
	}
	return ok(c, http.StatusOK, task)
}

func (h taskHandlers) delete(c echo.Context) error {
	msgs := errorMessages{
		notFound:  msgTaskNotFound,
		forbidden: "Not authorized to delete this task",
		internal:  "Server error deleting task",
	}
	id, err := identity(c)
	if err != nil {
		return writeError(c, h.logger, msgs, err)
	}

	m := metricsFrom(c)
	start := time.Now()
	err = h.svc.Delete(c.Request().Context(), id.UserID, c.Param("id"))
	m.ObserveStore(time.Since(start))
	if err != nil {
		m.SetErrorStage("delete")
		return writeError(c, h.logger, msgs, err)
	}
	return c.JSON(http.StatusOK, messageResponse{Success: true, Message: "Task deleted successfully"})
}
