package activity

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/zoobzio/capitan"
)

// Server exposes a Store over HTTP:
//
//	GET    /activities      list, newest first
//	POST   /activities      create from {"description": "..."}
//	PUT    /activities/:id  set {"checked": bool}, or flip it when omitted
//	DELETE /activities/:id  remove and return the removed activity
//
// Every successful response carries a JSON body.
type Server struct {
	store *Store
	echo  *echo.Echo
}

type createRequest struct {
	Description string `json:"description"`
}

type updateRequest struct {
	Checked *bool `json:"checked"`
}

// NewServer creates a server for store.
func NewServer(store *Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{store: store, echo: e}
	e.GET("/activities", s.list)
	e.POST("/activities", s.create)
	e.PUT("/activities/:id", s.update)
	e.DELETE("/activities/:id", s.remove)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) list(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.List())
}

func (s *Server) create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	a, err := s.store.Add(req.Description)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	capitan.Emit(c.Request().Context(), Created,
		KeyID.Field(a.ID),
		KeyDescription.Field(a.Description),
	)
	return c.JSON(http.StatusCreated, a)
}

func (s *Server) update(c echo.Context) error {
	id := c.Param("id")
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	current, err := s.store.Get(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	checked := !current.Checked
	if req.Checked != nil {
		checked = *req.Checked
	}

	a, err := s.store.SetChecked(id, checked)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	capitan.Emit(c.Request().Context(), Updated,
		KeyID.Field(a.ID),
		KeyChecked.Field(a.Checked),
	)
	return c.JSON(http.StatusOK, a)
}

func (s *Server) remove(c echo.Context) error {
	a, err := s.store.Delete(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	capitan.Emit(c.Request().Context(), Deleted,
		KeyID.Field(a.ID),
	)
	return c.JSON(http.StatusOK, a)
}
