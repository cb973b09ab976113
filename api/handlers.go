package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"planboard-api/domain"
	"planboard-api/storage"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, logger *log.Logger) {
	e.GET("/api/tasks", getTasks(store, auth, logger))
	e.POST("/api/tasks", postTask(store, auth))
	e.PATCH("/api/tasks/:id", patchTask(store, auth))
	e.DELETE("/api/tasks/:id", deleteTask(store, auth))
	e.POST("/api/tasks/reorder", reorderTasks(store, auth, logger))

	e.GET("/api/categories", getCategories(store, auth))
	e.POST("/api/categories", postCategory(store, auth))
	e.PATCH("/api/categories/:id", patchCategory(store, auth))
	e.DELETE("/api/categories/:id", deleteCategory(store, auth))

	registerUserRoutes(e, store, auth, logger)

	e.GET("/healthz", healthz())

	initOrderWriter(store, logger)
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// requireUser authenticates the request and loads the caller's profile,
// provisioning one on first contact.
func requireUser(c echo.Context, store Storage, auth Authenticator) (domain.User, error) {
	identity, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return domain.User{}, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}

	ctx := c.Request().Context()
	user, err := store.GetUser(ctx, identity.UserID)
	if err != nil {
		c.Logger().Error(err)
		return domain.User{}, echo.NewHTTPError(http.StatusInternalServerError, "profile lookup failed")
	}
	if user != nil {
		return *user, nil
	}

	fresh := domain.User{
		ID:        identity.UserID,
		Nickname:  domain.DefaultNickname("", identity.Email),
		Email:     identity.Email,
		Role:      domain.RoleUser,
		Color:     randomColor(),
		CreatedAt: time.Now().UTC(),
	}
	if err := store.UpsertUser(ctx, fresh); err != nil {
		c.Logger().Error(err)
		return domain.User{}, echo.NewHTTPError(http.StatusInternalServerError, "profile provisioning failed")
	}
	return fresh, nil
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseAnchor accepts an RFC3339 instant or a plain calendar date and falls
// back to the current moment.
func parseAnchor(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	if at, err := time.Parse(time.RFC3339, raw); err == nil {
		return at, nil
	}
	at, err := time.Parse(domain.DueDateLayout, raw)
	if err != nil {
		return time.Time{}, errors.New("invalid anchor")
	}
	return at, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func taskFilterFromQuery(c echo.Context, user domain.User) (domain.TaskFilter, error) {
	period, err := domain.ParsePeriod(c.QueryParam("period"))
	if err != nil {
		return domain.TaskFilter{}, err
	}
	anchor, err := parseAnchor(c.QueryParam("anchor"))
	if err != nil {
		return domain.TaskFilter{}, err
	}
	status, err := domain.ParseStatusFilter(c.QueryParam("status"))
	if err != nil {
		return domain.TaskFilter{}, err
	}

	owners := splitList(c.QueryParam("owners"))
	if user.Role != domain.RoleAdmin {
		// Non-admin callers only ever see their own tasks.
		owners = []string{user.ID}
	}

	return domain.TaskFilter{
		Owners:     owners,
		Period:     period,
		Anchor:     anchor,
		Search:     c.QueryParam("q"),
		Status:     status,
		Categories: splitList(c.QueryParam("category")),
	}, nil
}

// fetchScope picks the storage listing that covers the filter: a single-owner
// filter hits the per-owner (cacheable) listing, anything wider scans the
// collection.
func fetchScope(filter domain.TaskFilter) string {
	if len(filter.Owners) == 1 {
		return filter.Owners[0]
	}
	return ""
}

// mutationOwner picks the partition a task mutation addresses. Admins may act
// on another user's task via the owner query parameter; everyone else stays
// in their own partition.
func mutationOwner(c echo.Context, user domain.User) string {
	if user.Role == domain.RoleAdmin {
		if owner := c.QueryParam("owner"); owner != "" {
			return owner
		}
	}
	return user.ID
}

func statsFor(tasks []domain.Task) taskStats {
	stats := taskStats{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			stats.Completed++
		}
	}
	return stats
}

func viewTasks(tasks []domain.Task, now time.Time) []taskView {
	views := make([]taskView, len(tasks))
	for i, t := range tasks {
		views[i] = taskView{Task: t, ExpirationStatus: domain.ExpirationStatus(t, now)}
	}
	return views
}

func getTasks(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		if spanCtx != nil {
			req := c.Request().WithContext(spanCtx)
			c.SetRequest(req)
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		user, authErr := requireUser(c, store, auth)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = authErr
			if he, ok := authErr.(*echo.HTTPError); ok {
				err = c.JSON(he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message)})
			}
			return err
		}

		filter, filterErr := taskFilterFromQuery(c, user)
		if filterErr != nil {
			metrics.SetErrorStage("invalid_filter")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: filterErr.Error()})
			return err
		}
		metrics.SetPeriod(string(filter.Period))
		metrics.SetSearchApplied(filter.Search != "")

		fetchStart := time.Now()
		tasks, fetchErr := store.ListTasks(ctx, fetchScope(filter))
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.JSON(http.StatusInternalServerError, errorResponse{Error: "task listing failed"})
			return err
		}

		visible := domain.FilterTasks(domain.SortTasks(tasks), filter)
		metrics.SetTasksReturned(len(visible))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasksResponse{Tasks: viewTasks(visible, time.Now()), Stats: statsFor(visible)})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := requireUser(c, store, auth)
		if err != nil {
			return err
		}

		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		owner := user
		if req.OwnerID != "" && req.OwnerID != user.ID {
			if user.Role != domain.RoleAdmin {
				return c.JSON(http.StatusForbidden, errorResponse{Error: "admin role required"})
			}
			target, lookupErr := store.GetUser(c.Request().Context(), req.OwnerID)
			if lookupErr != nil {
				c.Logger().Error(lookupErr)
				return c.JSON(http.StatusInternalServerError, errorResponse{Error: "owner lookup failed"})
			}
			if target == nil {
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown owner"})
			}
			owner = *target
		}

		now := time.Now().UTC()
		order := nextTimestamp()
		task := domain.Task{
			ID:            uuid.NewString(),
			Title:         strings.TrimSpace(req.Title),
			OwnerID:       owner.ID,
			OwnerEmail:    owner.Email,
			OwnerNickname: owner.Nickname,
			OwnerColor:    owner.Color,
			DueDate:       req.DueDate,
			DueTime:       req.DueTime,
			CategoryID:    req.CategoryID,
			Policy:        domain.ExpirationPolicy(req.Policy),
			Order:         &order,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if req.ExpiresAt != "" {
			at, parseErr := time.Parse(time.RFC3339, req.ExpiresAt)
			if parseErr != nil {
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid expiresAt"})
			}
			task.ExpiresAt = &at
		}
		if err := task.Validate(); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}

		if err := store.InsertTask(c.Request().Context(), task); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "task creation failed"})
		}
		return c.JSON(http.StatusCreated, taskView{Task: task, ExpirationStatus: domain.ExpirationStatus(task, now)})
	}
}

func patchTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := requireUser(c, store, auth)
		if err != nil {
			return err
		}

		var req updateTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		ctx := c.Request().Context()
		task, err := store.GetTask(ctx, mutationOwner(c, user), c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "task lookup failed"})
		}
		if task == nil {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
		}

		now := time.Now().UTC()
		if !domain.Editable(*task, now) {
			return c.JSON(http.StatusConflict, errorResponse{Error: "task has expired"})
		}

		merged := *task
		if req.Title != nil {
			merged.Title = strings.TrimSpace(*req.Title)
		}
		if req.DueDate != nil {
			merged.DueDate = *req.DueDate
		}
		if req.DueTime != nil {
			merged.DueTime = *req.DueTime
		}
		if req.CategoryID != nil {
			merged.CategoryID = *req.CategoryID
		}
		if req.Completed != nil {
			merged.Completed = *req.Completed
		}
		merged.UpdatedAt = now
		if err := merged.Validate(); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}

		upd := storage.TaskUpdate{
			OwnerID:   task.OwnerID,
			ID:        task.ID,
			Title:     req.Title,
			DueDate:   req.DueDate,
			DueTime:   req.DueTime,
			Category:  req.CategoryID,
			Completed: req.Completed,
			UpdatedAt: now,
		}
		if err := store.UpdateTask(ctx, upd); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "task update failed"})
		}
		return c.JSON(http.StatusOK, taskView{Task: merged, ExpirationStatus: domain.ExpirationStatus(merged, now)})
	}
}

func deleteTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := requireUser(c, store, auth)
		if err != nil {
			return err
		}
		if err := store.DeleteTask(c.Request().Context(), mutationOwner(c, user), c.Param("id")); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "task deletion failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func reorderTasks(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := requireUser(c, store, auth)
		if err != nil {
			return err
		}

		var req reorderRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		period, err := domain.ParsePeriod(req.Period)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		anchor, err := parseAnchor(req.Anchor)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid anchor"})
		}
		status, err := domain.ParseStatusFilter(req.Status)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		owners := []string{user.ID}
		if user.Role == domain.RoleAdmin {
			// Admins reorder across the whole board; the filter mirrors
			// whatever owner scope their view had.
			owners = req.Owners
		}
		filter := domain.TaskFilter{
			Owners:     owners,
			Period:     period,
			Anchor:     anchor,
			Search:     req.Search,
			Status:     status,
			Categories: req.Categories,
		}

		ctx := c.Request().Context()
		tasks, err := store.ListTasks(ctx, fetchScope(filter))
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "task listing failed"})
		}
		full := domain.SortTasks(tasks)
		visible := domain.FilterTasks(full, filter)

		_, updates, err := domain.MoveTask(full, visible, req.ItemID, req.From, req.To)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}

		job := persistJob{scope: scopeTasks, updates: updates}
		if tryEnqueueJob(job) {
			return c.NoContent(http.StatusAccepted)
		}

		if logger != nil {
			logger.Warn("order buffer saturated; persisting inline")
		}

		persistCtx, cancel := context.WithTimeout(bg, persistTimeout)
		persistErr := store.ApplyTaskOrders(persistCtx, job.updates)
		cancel()
		if persistErr != nil {
			c.Logger().Errorf("inline order persist failed: %v", persistErr)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "reorder failed"})
		}
		return c.NoContent(http.StatusAccepted)
	}
}

func getCategories(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := requireUser(c, store, auth)
		if err != nil {
			return err
		}
		scope := user.ID
		if user.Role == domain.RoleAdmin {
			// Empty scope lists every user's categories so the admin board
			// can resolve names on foreign tasks.
			scope = c.QueryParam("owner")
		}
		categories, err := store.ListCategories(c.Request().Context(), scope)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "category listing failed"})
		}
		return c.JSON(http.StatusOK, categories)
	}
}

func postCategory(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := requireUser(c, store, auth)
		if err != nil {
			return err
		}
		var req categoryRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		category := domain.Category{
			ID:        uuid.NewString(),
			Name:      strings.TrimSpace(req.Name),
			Color:     req.Color,
			OwnerID:   user.ID,
			CreatedAt: time.Now().UTC(),
		}
		if err := category.Validate(); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		if err := store.InsertCategory(c.Request().Context(), category); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "category creation failed"})
		}
		return c.JSON(http.StatusCreated, category)
	}
}

func patchCategory(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := requireUser(c, store, auth)
		if err != nil {
			return err
		}
		var req updateCategoryRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "empty category name"})
		}
		if err := store.UpdateCategory(c.Request().Context(), user.ID, c.Param("id"), req.Name, req.Color); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "category update failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteCategory(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := requireUser(c, store, auth)
		if err != nil {
			return err
		}
		if err := store.DeleteCategory(c.Request().Context(), user.ID, c.Param("id")); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "category deletion failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}
