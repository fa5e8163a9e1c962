package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/shop_auth/internal/logging"
	"github.com/Skotchmaster/shop_auth/internal/middleware"
	"github.com/Skotchmaster/shop_auth/internal/principal"
	"github.com/Skotchmaster/shop_auth/internal/service"
	"github.com/Skotchmaster/shop_auth/internal/util"
)

type PeopleHTTP struct {
	Accts *service.AccountService
}

func caller(c echo.Context) (principal.Principal, error) {
	p, ok := middleware.Principal(c)
	if !ok {
		return principal.Principal{}, principal.ErrUnauthorized
	}
	return p, nil
}

func (h *PeopleHTTP) Profile(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return err
	}
	user, err := h.Accts.Profile(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

func (h *PeopleHTTP) Deactivate(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return err
	}
	if err := h.Accts.Deactivate(c.Request().Context(), p); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Account has been deactivated."})
}

func (h *PeopleHTTP) Restore(c echo.Context) error {
	ctx := c.Request().Context()

	var req service.Credentials
	if err := c.Bind(&req); err != nil {
		logging.FromContext(ctx).Warn("restore_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "Malformed JSON request")
	}
	if err := h.Accts.Restore(ctx, req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Account successfully restored"})
}

func (h *PeopleHTTP) AllCustomers(c echo.Context) error {
	p, err := caller(c)
	if err != nil {
		return err
	}
	page := util.ParsePage(c.QueryParam("page"), c.QueryParam("size"))
	users, err := h.Accts.ListCustomers(c.Request().Context(), p, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}
