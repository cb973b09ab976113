package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"planboard-api/domain"
)

func registerUserRoutes(e *echo.Echo, store Storage, auth Authenticator, logger *log.Logger) {
	e.GET("/api/users", getUsers(store, auth))
	e.POST("/api/users", postUser(store, auth))
	e.PATCH("/api/users/:id", patchUser(store, auth))
	e.DELETE("/api/users/:id", deleteUser(store, auth))
	e.POST("/api/users/reorder", reorderUsers(store, auth, logger))
}

func requireAdmin(c echo.Context, store Storage, auth Authenticator) (domain.User, error) {
	user, err := requireUser(c, store, auth)
	if err != nil {
		return domain.User{}, err
	}
	if user.Role != domain.RoleAdmin {
		return domain.User{}, echo.NewHTTPError(http.StatusForbidden, "admin role required")
	}
	return user, nil
}

func getUsers(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := requireAdmin(c, store, auth); err != nil {
			return err
		}
		users, err := store.ListUsers(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "user listing failed"})
		}
		sorted := domain.SortUsers(users)
		return c.JSON(http.StatusOK, domain.FilterUsers(sorted, c.QueryParam("q")))
	}
}

func postUser(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := requireAdmin(c, store, auth); err != nil {
			return err
		}
		var req upsertUserRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		role := domain.RoleUser
		if req.Role != "" {
			role = domain.Role(req.Role)
		}
		color := req.Color
		if color == "" {
			color = randomColor()
		}
		order := nextTimestamp()
		user := domain.User{
			ID:        uuid.NewString(),
			Nickname:  domain.DefaultNickname(req.Nickname, req.Email),
			Email:     strings.TrimSpace(req.Email),
			Role:      role,
			Color:     color,
			Order:     &order,
			CreatedAt: time.Now().UTC(),
		}
		if err := user.Validate(); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		if err := store.UpsertUser(c.Request().Context(), user); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "user creation failed"})
		}
		return c.JSON(http.StatusCreated, user)
	}
}

func patchUser(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := requireAdmin(c, store, auth); err != nil {
			return err
		}
		var req updateUserRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		ctx := c.Request().Context()
		user, err := store.GetUser(ctx, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "user lookup failed"})
		}
		if user == nil {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "user not found"})
		}

		merged := *user
		if req.Nickname != nil {
			merged.Nickname = domain.DefaultNickname(*req.Nickname, merged.Email)
		}
		if req.Email != nil {
			merged.Email = strings.TrimSpace(*req.Email)
		}
		if req.Role != nil {
			merged.Role = domain.Role(*req.Role)
		}
		if req.Color != nil {
			merged.Color = *req.Color
		}
		if err := merged.Validate(); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		if err := store.UpsertUser(ctx, merged); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "user update failed"})
		}
		return c.JSON(http.StatusOK, merged)
	}
}

// deleteUser removes the profile record only. Credentials live with the
// identity provider and are untouched, so a returning caller is
// re-provisioned with a fresh profile.
func deleteUser(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		admin, err := requireAdmin(c, store, auth)
		if err != nil {
			return err
		}
		if admin.ID == c.Param("id") {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "cannot delete own profile"})
		}
		if err := store.DeleteUser(c.Request().Context(), c.Param("id")); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "user deletion failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func reorderUsers(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := requireAdmin(c, store, auth); err != nil {
			return err
		}
		var req reorderUsersRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		ctx := c.Request().Context()
		users, err := store.ListUsers(ctx)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "user listing failed"})
		}
		sorted := domain.SortUsers(users)

		_, updates, err := domain.MoveUser(sorted, req.ItemID, req.From, req.To)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}

		if tryEnqueueJob(persistJob{scope: scopeUsers, updates: updates}) {
			return c.NoContent(http.StatusAccepted)
		}

		if logger != nil {
			logger.Warn("order buffer saturated; persisting inline")
		}
		persistCtx, cancel := context.WithTimeout(bg, persistTimeout)
		persistErr := store.ApplyUserOrders(persistCtx, updates)
		cancel()
		if persistErr != nil {
			c.Logger().Errorf("inline order persist failed: %v", persistErr)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "reorder failed"})
		}
		return c.NoContent(http.StatusAccepted)
	}
}
