package glosa

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/glosas/glosas/internal/platform/auth"
	"github.com/glosas/glosas/pkg/pagination"
)

var validate = validator.New()

type Handler struct {
	svc     *Service
	sweeper *Sweeper
}

// NewHandler builds the objection endpoints. sweeper may be nil, in which
// case the manual sweep endpoint is not registered.
func NewHandler(svc *Service, sweeper *Sweeper) *Handler {
	return &Handler{svc: svc, sweeper: sweeper}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – every party to the dispute
	readGroup := api.Group("", auth.RequireRole(auth.RoleAuditor, auth.RoleProvider, auth.RoleInsurer, auth.RoleMediator))
	readGroup.GET("/objections", h.List)
	readGroup.GET("/objections/stats", h.Stats)
	readGroup.GET("/objections/:id", h.Get)
	readGroup.GET("/objections/:id/trace", h.ListTrace)
	readGroup.POST("/objections/:id/deadlines/check", h.CheckDeadlines)

	auditGroup := api.Group("", auth.RequireRole(auth.RoleAuditor))
	auditGroup.POST("/objections", h.Create)
	auditGroup.POST("/objections/:id/notify", h.Notify)
	auditGroup.POST("/objections/:id/annul", h.Annul)

	providerGroup := api.Group("", auth.RequireRole(auth.RoleProvider))
	providerGroup.POST("/objections/:id/acknowledge", h.Acknowledge)
	providerGroup.POST("/objections/:id/response", h.Respond)

	insurerGroup := api.Group("", auth.RequireRole(auth.RoleInsurer))
	insurerGroup.POST("/objections/:id/ratification", h.Ratify)

	settleGroup := api.Group("", auth.RequireRole(auth.RoleInsurer, auth.RoleAuditor))
	settleGroup.POST("/objections/:id/close", h.Close)

	if h.sweeper != nil {
		adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
		adminGroup.POST("/objections/sweep", h.Sweep)
	}
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := BindAndValidate(c, &in); err != nil {
		return err
	}
	o, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return err
	}
	o, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) List(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) Stats(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	st, err := h.svc.Statistics(c.Request().Context(), f)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) Notify(c echo.Context) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return err
	}
	o, err := h.svc.Notify(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) Acknowledge(c echo.Context) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return err
	}
	o, err := h.svc.Acknowledge(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) Respond(c echo.Context) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return err
	}
	var in ResponseInput
	if err := BindAndValidate(c, &in); err != nil {
		return err
	}
	o, err := h.svc.Respond(c.Request().Context(), id, in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) Ratify(c echo.Context) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return err
	}
	var in RatificationInput
	if err := BindAndValidate(c, &in); err != nil {
		return err
	}
	o, err := h.svc.Ratify(c.Request().Context(), id, in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

type annulRequest struct {
	Justification string `json:"justification"`
}

func (h *Handler) Annul(c echo.Context) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return err
	}
	var req annulRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Code: "validation", Message: err.Error()})
	}
	o, err := h.svc.Annul(c.Request().Context(), id, req.Justification)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

type closeRequest struct {
	Note string `json:"note"`
}

func (h *Handler) Close(c echo.Context) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return err
	}
	var req closeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Code: "validation", Message: err.Error()})
	}
	o, err := h.svc.Close(c.Request().Context(), id, req.Note)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) CheckDeadlines(c echo.Context) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return err
	}
	st, err := h.svc.CheckDeadlines(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) ListTrace(c echo.Context) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return err
	}
	entries, err := h.svc.ListTrace(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) Sweep(c echo.Context) error {
	report, err := h.sweeper.Tick(c.Request().Context())
	if err != nil {
		return HTTPError(err)
	}
	if report == nil {
		return echo.NewHTTPError(http.StatusConflict, errorBody{Code: "sweep_in_progress", Message: "another replica is sweeping"})
	}
	return c.JSON(http.StatusOK, report)
}

func parseFilter(c echo.Context) (ListFilter, error) {
	var f ListFilter
	for name, dst := range map[string]**uuid.UUID{
		"provider_id": &f.ProviderID,
		"invoice_id":  &f.InvoiceID,
		"batch_id":    &f.BatchID,
		"case_id":     &f.CaseID,
	} {
		if v := c.QueryParam(name); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return f, BadRequest("invalid %s", name)
			}
			*dst = &id
		}
	}
	if v := c.QueryParam("category"); v != "" {
		f.Category = Category(strings.ToUpper(v))
		if !f.Category.Valid() {
			return f, BadRequest("unknown category %q", v)
		}
	}
	if v := c.QueryParam("state"); v != "" {
		for _, s := range strings.Split(v, ",") {
			st := State(strings.TrimSpace(s))
			if !st.Valid() {
				return f, BadRequest("unknown state %q", s)
			}
			f.States = append(f.States, st)
		}
	}
	for name, dst := range map[string]**time.Time{
		"created_from": &f.CreatedFrom,
		"created_to":   &f.CreatedTo,
	} {
		if v := c.QueryParam(name); v != "" {
			t, err := parseTime(v)
			if err != nil {
				return f, BadRequest("invalid %s: use RFC 3339 or YYYY-MM-DD", name)
			}
			*dst = &t
		}
	}
	f.OnlyOverdue, _ = strconv.ParseBool(c.QueryParam("overdue"))
	f.OnlyDueSoon, _ = strconv.ParseBool(c.QueryParam("due_soon"))
	return f, nil
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}

// -- shared HTTP helpers --

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorMapping ties a sentinel error to a status and a machine-readable code.
type ErrorMapping struct {
	Err    error
	Status int
	Code   string
}

var errorMappings = []ErrorMapping{
	{ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{ErrDuplicateActiveObjection, http.StatusConflict, "duplicate_active_objection"},
	{ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
	{ErrValueExceedsDisputed, http.StatusUnprocessableEntity, "value_exceeds_disputed"},
	{ErrMissingJustification, http.StatusUnprocessableEntity, "missing_justification"},
	{ErrNotFound, http.StatusNotFound, "not_found"},
	{ErrForbidden, http.StatusForbidden, "forbidden"},
	{ErrValidation, http.StatusBadRequest, "validation"},
}

// HTTPError converts a service error into the response body clients see.
// extra mappings are checked before the objection ones.
func HTTPError(err error, extra ...ErrorMapping) *echo.HTTPError {
	for _, set := range [][]ErrorMapping{extra, errorMappings} {
		for _, m := range set {
			if errors.Is(err, m.Err) {
				return echo.NewHTTPError(m.Status, errorBody{Code: m.Code, Message: err.Error()})
			}
		}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	return echo.NewHTTPError(http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal error"}).SetInternal(err)
}

// BadRequest builds a 400 with the validation code.
func BadRequest(format string, args ...any) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, errorBody{Code: "validation", Message: fmt.Sprintf(format, args...)})
}

// ParamID parses a uuid path parameter.
func ParamID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, BadRequest("invalid %s", name)
	}
	return id, nil
}

// BindAndValidate decodes the body into dst and runs its validate tags.
func BindAndValidate(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return BadRequest("invalid request body: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
			}
			return BadRequest("%s", strings.Join(msgs, "; "))
		}
		return BadRequest("%v", err)
	}
	return nil
}
