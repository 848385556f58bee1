package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dmitrijs2005/nutritrack/internal/edge"
)

const maxPushBytes = 64 << 10

// StatusResponse is the body of GET /_edge/status.
type StatusResponse struct {
	Active      bool     `json:"active"`
	Version     string   `json:"version,omitempty"`
	State       string   `json:"state,omitempty"`
	Generations []string `json:"generations"`
}

// UpdateRequest is the body of POST /_edge/update.
type UpdateRequest struct {
	Version string `json:"version"`
}

func (s *Server) active() (*edge.Controller, error) {
	c := s.registry.Active()
	if c == nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, edge.ErrNoController.Error())
	}
	return c, nil
}

func (s *Server) status(c echo.Context) error {
	ctrl := s.registry.Active()
	if ctrl == nil {
		return c.JSON(http.StatusOK, StatusResponse{Generations: []string{}})
	}

	gens, err := ctrl.Generations(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, StatusResponse{
		Active:      true,
		Version:     ctrl.Version(),
		State:       ctrl.State().String(),
		Generations: gens,
	})
}

func (s *Server) push(c echo.Context) error {
	ctrl, err := s.active()
	if err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPushBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sender, _ := c.Get(senderKey).(string)
	n, err := ctrl.HandlePush(c.Request().Context(), sender, body)
	if errors.Is(err, edge.ErrInvalidPush) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, n)
}

func (s *Server) listNotifications(c echo.Context) error {
	return c.JSON(http.StatusOK, s.inbox.List())
}

func (s *Server) clickNotification(c echo.Context) error {
	ctrl, err := s.active()
	if err != nil {
		return err
	}

	target, err := ctrl.HandleNotificationClick(c.Request().Context(), c.Param("id"))
	if errors.Is(err, edge.ErrUnknownNotice) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, target)
}

func (s *Server) sync(c echo.Context) error {
	ctrl, err := s.active()
	if err != nil {
		return err
	}

	rep, err := ctrl.HandleSync(c.Request().Context(), c.Param("tag"))
	switch {
	case errors.Is(err, edge.ErrUnknownSyncTag):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, edge.ErrNoReplayer):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (s *Server) update(c echo.Context) error {
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	req.Version = strings.TrimSpace(req.Version)
	if req.Version == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "version is required")
	}

	next, err := s.newController(req.Version)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	err = s.registry.Update(ctx, next)
	switch {
	case errors.Is(err, edge.ErrSameVersion):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, edge.ErrInstallFailed):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case err != nil:
		return err
	}

	s.logger.Info(ctx, "cache version updated", "version", req.Version, "by", c.Get(senderKey))
	return s.status(c)
}
