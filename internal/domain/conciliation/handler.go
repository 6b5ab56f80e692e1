package conciliation

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/glosas/glosas/internal/domain/glosa"
	"github.com/glosas/glosas/internal/platform/auth"
	"github.com/glosas/glosas/internal/platform/blobstore"
	"github.com/glosas/glosas/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – every party to the dispute
	readGroup := api.Group("", auth.RequireRole(auth.RoleAuditor, auth.RoleProvider, auth.RoleInsurer, auth.RoleMediator))
	readGroup.GET("/conciliation/cases", h.List)
	readGroup.GET("/conciliation/cases/stats", h.Stats)
	readGroup.GET("/conciliation/dashboard", h.Dashboard)
	readGroup.GET("/conciliation/cases/:id", h.Get)
	readGroup.GET("/conciliation/batches/:batch_id/case", h.GetByBatch)
	readGroup.GET("/conciliation/cases/:id/objections", h.ListObjections)
	readGroup.GET("/conciliation/cases/:id/trace", h.ListTrace)
	readGroup.GET("/conciliation/cases/:id/minutes", h.DownloadMinutes)
	readGroup.POST("/conciliation/cases/:id/documents", h.AttachDocument)

	openGroup := api.Group("", auth.RequireRole(auth.RoleAuditor, auth.RoleMediator))
	openGroup.POST("/conciliation/cases", h.CreateOrGet)

	providerGroup := api.Group("", auth.RequireRole(auth.RoleProvider))
	providerGroup.POST("/conciliation/cases/:id/objections/:objection_id/response", h.Respond)

	mediatorGroup := api.Group("", auth.RequireRole(auth.RoleMediator))
	mediatorGroup.POST("/conciliation/cases/:id/objections/:objection_id/decision", h.Decide)
	mediatorGroup.POST("/conciliation/cases/:id/minutes", h.GenerateMinutes)
	mediatorGroup.POST("/conciliation/cases/:id/meetings", h.AddMeeting)
}

func httpError(err error) *echo.HTTPError {
	return glosa.HTTPError(err, errorMappings...)
}

type createRequest struct {
	BatchID  uuid.UUID `json:"batch_id" validate:"required"`
	Mediator string    `json:"mediator"`
}

// CreateOrGet opens the case of a batch, or returns the existing one with
// 200 instead of 201.
func (h *Handler) CreateOrGet(c echo.Context) error {
	var req createRequest
	if err := glosa.BindAndValidate(c, &req); err != nil {
		return err
	}
	cs, created, err := h.svc.CreateOrGet(c.Request().Context(), req.BatchID, req.Mediator)
	if err != nil {
		return httpError(err)
	}
	if created {
		return c.JSON(http.StatusCreated, cs)
	}
	return c.JSON(http.StatusOK, cs)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := glosa.ParamID(c, "id")
	if err != nil {
		return err
	}
	cs, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cs)
}

func (h *Handler) GetByBatch(c echo.Context) error {
	batchID, err := glosa.ParamID(c, "batch_id")
	if err != nil {
		return err
	}
	cs, err := h.svc.GetByBatch(c.Request().Context(), batchID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cs)
}

func (h *Handler) List(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
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
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) Dashboard(c echo.Context) error {
	d, err := h.svc.Dashboard(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListObjections(c echo.Context) error {
	id, err := glosa.ParamID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListObjections(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListTrace(c echo.Context) error {
	id, err := glosa.ParamID(c, "id")
	if err != nil {
		return err
	}
	entries, err := h.svc.ListTrace(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) Respond(c echo.Context) error {
	id, objectionID, err := caseAndObjection(c)
	if err != nil {
		return err
	}
	var in glosa.ResponseInput
	if err := glosa.BindAndValidate(c, &in); err != nil {
		return err
	}
	cs, err := h.svc.RecordProviderResponse(c.Request().Context(), id, objectionID, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cs)
}

type decisionRequest struct {
	Decision      Decision `json:"decision" validate:"required,oneof=ratify lift"`
	Justification string   `json:"justification"`
}

func (h *Handler) Decide(c echo.Context) error {
	id, objectionID, err := caseAndObjection(c)
	if err != nil {
		return err
	}
	var req decisionRequest
	if err := glosa.BindAndValidate(c, &req); err != nil {
		return err
	}
	cs, err := h.svc.Decide(c.Request().Context(), id, objectionID, req.Decision, req.Justification)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cs)
}

func (h *Handler) GenerateMinutes(c echo.Context) error {
	id, err := glosa.ParamID(c, "id")
	if err != nil {
		return err
	}
	var in MinutesInput
	if err := glosa.BindAndValidate(c, &in); err != nil {
		return err
	}
	cs, err := h.svc.GenerateMinutes(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cs.Minutes)
}

func (h *Handler) DownloadMinutes(c echo.Context) error {
	id, err := glosa.ParamID(c, "id")
	if err != nil {
		return err
	}
	rc, info, err := h.svc.Minutes(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, info.FileName))
	c.Response().Header().Set("X-Content-SHA256", info.SHA256)
	return c.Stream(http.StatusOK, info.ContentType, rc)
}

func (h *Handler) AddMeeting(c echo.Context) error {
	id, err := glosa.ParamID(c, "id")
	if err != nil {
		return err
	}
	var in MeetingInput
	if err := glosa.BindAndValidate(c, &in); err != nil {
		return err
	}
	cs, err := h.svc.AddMeeting(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cs.Meetings[len(cs.Meetings)-1])
}

// AttachDocument takes a multipart upload in the "file" field with an
// optional "description".
func (h *Handler) AttachDocument(c echo.Context) error {
	id, err := glosa.ParamID(c, "id")
	if err != nil {
		return err
	}
	file, err := c.FormFile("file")
	if err != nil {
		return glosa.BadRequest("file is required")
	}
	src, err := file.Open()
	if err != nil {
		return httpError(fmt.Errorf("open upload: %w", err))
	}
	defer src.Close()

	body, err := io.ReadAll(io.LimitReader(src, blobstore.MaxSize+1))
	if err != nil {
		return httpError(fmt.Errorf("read upload: %w", err))
	}
	cs, err := h.svc.AttachDocument(c.Request().Context(), id, DocumentInput{
		FileName:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Description: c.FormValue("description"),
		Body:        body,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cs.Documents[len(cs.Documents)-1])
}

func caseAndObjection(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	id, err := glosa.ParamID(c, "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	objectionID, err := glosa.ParamID(c, "objection_id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return id, objectionID, nil
}

func parseFilter(c echo.Context) (ListFilter, error) {
	var f ListFilter
	if v := c.QueryParam("state"); v != "" {
		f.State = State(v)
		if !f.State.Valid() {
			return f, glosa.BadRequest("unknown state %q", v)
		}
	}
	f.Mediator = c.QueryParam("mediator")
	if v := c.QueryParam("provider_id"); v != "" {
		pid, err := uuid.Parse(v)
		if err != nil {
			return f, glosa.BadRequest("invalid provider_id")
		}
		f.ProviderID = &pid
	}
	f.OnlyOverdue, _ = strconv.ParseBool(c.QueryParam("overdue"))
	return f, nil
}
