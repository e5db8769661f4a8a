// Package server exposes reconciled calendars over a small local JSON API.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/christopherklint97/deskcheck/internal/calendar"
	"github.com/christopherklint97/deskcheck/internal/config"
	"github.com/christopherklint97/deskcheck/internal/console"
	"github.com/christopherklint97/deskcheck/internal/reconcile"
	"github.com/christopherklint97/deskcheck/internal/report"
)

// EmployeeLister lists the employees visible to the employer. *console.Client implements it.
type EmployeeLister interface {
	ListEmployees(ctx context.Context) ([]console.Employee, error)
}

// ReportBuilder builds one employee's report. *report.Service implements it.
type ReportBuilder interface {
	Build(ctx context.Context, req report.Request) (*report.Report, error)
}

type Server struct {
	app       *fiber.App
	employees EmployeeLister
	reports   ReportBuilder
	defaults  config.ReportConfig
	logger    *slog.Logger
	now       func() time.Time
}

func New(employees EmployeeLister, reports ReportBuilder, defaults config.ReportConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		employees: employees,
		reports:   reports,
		defaults:  defaults,
		logger:    logger,
		now:       time.Now,
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(s.requestLog)

	api := s.app.Group("/api")
	api.Get("/employees", s.listEmployees)
	api.Get("/employees/:id/calendar.ics", s.calendarICS)
	api.Get("/employees/:id/calendar", s.calendarJSON)

	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until ctx is cancelled.
func (s *Server) Listen(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	}
}

func (s *Server) requestLog(c *fiber.Ctx) error {
	id := c.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	c.Set("X-Request-ID", id)

	start := time.Now()
	err := c.Next()
	if err != nil {
		if herr := s.app.ErrorHandler(c, err); herr != nil {
			return herr
		}
	}
	s.logger.Debug("request",
		"id", id,
		"method", c.Method(),
		"path", c.OriginalURL(),
		"status", c.Response().StatusCode(),
		"elapsed", time.Since(start),
	)
	return nil
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, "INTERNAL_ERROR"

	var fe *fiber.Error
	var apiErr *console.APIError
	switch {
	case errors.Is(err, reconcile.ErrInvalidArgument):
		status, code = fiber.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, report.ErrNoSnapshot):
		status, code = fiber.StatusNotFound, "NO_SNAPSHOT"
	case errors.As(err, &apiErr):
		status, code = fiber.StatusBadGateway, "UPSTREAM_ERROR"
		if apiErr.StatusCode == fiber.StatusNotFound {
			status, code = fiber.StatusNotFound, "NOT_FOUND"
		}
	case errors.As(err, &fe):
		status, code = fe.Code, "ERROR"
		if fe.Code == fiber.StatusNotFound {
			code = "NOT_FOUND"
		}
	}

	if status >= 500 {
		s.logger.Error("request failed", "path", c.OriginalURL(), "status", status, "error", err)
	}
	return c.Status(status).JSON(errorResponse{Success: false, Error: err.Error(), Code: code})
}

func (s *Server) listEmployees(c *fiber.Ctx) error {
	employees, err := s.employees.ListEmployees(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": employees})
}

func (s *Server) calendarJSON(c *fiber.Ctx) error {
	rep, err := s.build(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": rep})
}

func (s *Server) calendarICS(c *fiber.Ctx) error {
	rep, err := s.build(c)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	opts := calendar.ExportOptions{EmployeeID: rep.EmployeeID, Name: rep.Employee, Stamp: rep.FetchedAt}
	if err := calendar.Export(&buf, rep.Events, opts); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/calendar; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`inline; filename="employee-%d.ics"`, rep.EmployeeID))
	return c.Send(buf.Bytes())
}

func (s *Server) build(c *fiber.Ctx) (*report.Report, error) {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return nil, &reconcile.ArgumentError{Field: "id", Message: "must be a positive employee id"}
	}

	start, end := s.defaults.Window(s.now())
	if v := c.Query("start"); v != "" {
		if start, err = reconcile.ParseDate(v); err != nil {
			return nil, &reconcile.ArgumentError{Field: "start", Message: err.Error()}
		}
	}
	if v := c.Query("end"); v != "" {
		if end, err = reconcile.ParseDate(v); err != nil {
			return nil, &reconcile.ArgumentError{Field: "end", Message: err.Error()}
		}
	}

	req := report.Request{
		EmployeeID: id,
		Employee:   s.employeeName(c.UserContext(), id),
		Window:     reconcile.Window{Start: start, End: end},
		Offline:    c.QueryBool("offline"),
	}
	return s.reports.Build(c.UserContext(), req)
}

func (s *Server) employeeName(ctx context.Context, id int) string {
	if s.employees == nil {
		return ""
	}
	employees, err := s.employees.ListEmployees(ctx)
	if err != nil {
		s.logger.Debug("looking up employee name", "employee_id", id, "error", err)
		return ""
	}
	for _, e := range employees {
		if e.ID == id {
			return e.DisplayName()
		}
	}
	return ""
}
