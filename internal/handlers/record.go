package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/observation-record-api/internal/database"
	"github.com/yukikurage/observation-record-api/internal/dto"
	apierrors "github.com/yukikurage/observation-record-api/internal/errors"
	"github.com/yukikurage/observation-record-api/internal/middleware"
	"github.com/yukikurage/observation-record-api/internal/search"
	"github.com/yukikurage/observation-record-api/internal/services"
)

type RecordHandler struct {
	recordService *services.RecordService
	log           logrus.FieldLogger
}

func NewRecordHandler(recordService *services.RecordService, log logrus.FieldLogger) *RecordHandler {
	return &RecordHandler{
		recordService: recordService,
		log:           log,
	}
}

// ListRecords returns every record
func (h *RecordHandler) ListRecords(c *gin.Context) {
	records, err := h.recordService.List(c.Request.Context())
	if err != nil {
		h.respondRecordError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToRecordDTOs(records))
}

// CreateRecord stores a record owned by the authenticated user
func (h *RecordHandler) CreateRecord(c *gin.Context) {
	username, ok := middleware.GetUsername(c)
	if !ok {
		apierrors.Unauthorized(c, "", "Not authenticated")
		return
	}
	if !requireJSON(c) {
		return
	}

	var req dto.CreateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid JSON format")
		return
	}

	required := []struct {
		name  string
		value *string
	}{
		{"recordIdentifier", req.Identifier},
		{"recordDescription", req.Description},
		{"recordPayload", req.Payload},
		{"recordRightAscension", req.RightAscension},
		{"recordDeclination", req.Declination},
	}
	for _, f := range required {
		if f.value == nil {
			apierrors.MissingField(c, "Missing field: "+f.name)
			return
		}
	}

	input := services.CreateRecordInput{
		Identifier:     *req.Identifier,
		Description:    *req.Description,
		Payload:        *req.Payload,
		RightAscension: *req.RightAscension,
		Declination:    *req.Declination,
	}
	if req.Observatory != nil {
		if len(req.Observatory) == 0 {
			apierrors.BadRequest(c, "Invalid observatory field")
			return
		}
		obs := req.Observatory[0]
		input.Observatory = &services.ObservatoryInput{
			Name:      obs.Name,
			Latitude:  obs.Latitude.String(),
			Longitude: obs.Longitude.String(),
		}
		input.WithWeather = len(req.ObservatoryWeather) > 0
	}

	record, err := h.recordService.Create(c.Request.Context(), username, input)
	if err != nil {
		h.respondRecordError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToRecordDTO(*record))
}

// UpdateRecord changes a record of the authenticated user. The target is
// given as the single query argument id.
func (h *RecordHandler) UpdateRecord(c *gin.Context) {
	username, ok := middleware.GetUsername(c)
	if !ok {
		apierrors.Unauthorized(c, "", "Not authenticated")
		return
	}
	if !requireJSON(c) {
		return
	}

	recordID, err := parseRecordID(c.Request.URL.RawQuery)
	if err != nil {
		apierrors.BadRequest(c, err.Error())
		return
	}

	var req dto.UpdateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid JSON format")
		return
	}

	err = h.recordService.Update(c.Request.Context(), username, recordID, services.UpdateRecordInput{
		Description:    req.Description,
		RightAscension: req.RightAscension,
		Declination:    req.Declination,
		UpdateReason:   req.UpdateReason,
	})
	if err != nil {
		h.respondRecordError(c, err)
		return
	}

	record, err := h.recordService.Get(c.Request.Context(), recordID)
	if err != nil {
		h.respondRecordError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToRecordDTO(*record))
}

// Search returns the records matching the query arguments. At least one
// argument is required.
func (h *RecordHandler) Search(c *gin.Context) {
	filter, err := search.ParseQuery(c.Request.URL.RawQuery)
	if err != nil {
		h.respondRecordError(c, err)
		return
	}
	if len(filter) == 0 {
		apierrors.InvalidFilter(c, "Search query cannot be empty")
		return
	}

	records, err := h.recordService.Search(c.Request.Context(), filter)
	if err != nil {
		h.respondRecordError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToRecordDTOs(records))
}

var errInvalidUpdateQuery = errors.New("update query must be id=<record id>")

func parseRecordID(rawQuery string) (uint64, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil || len(values) != 1 || len(values["id"]) != 1 {
		return 0, errInvalidUpdateQuery
	}
	id, err := strconv.ParseUint(values.Get("id"), 10, 64)
	if err != nil {
		return 0, errInvalidUpdateQuery
	}
	return id, nil
}

func requireJSON(c *gin.Context) bool {
	if !strings.HasPrefix(c.ContentType(), "application/json") {
		apierrors.BadRequest(c, "Incorrect Content-Type")
		return false
	}
	return true
}

func (h *RecordHandler) respondRecordError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrMissingField):
		apierrors.MissingField(c, err.Error())
	case errors.Is(err, search.ErrInvalidFilter):
		apierrors.InvalidFilter(c, err.Error())
	case errors.Is(err, services.ErrRecordNotFound):
		apierrors.NotFound(c, "Record not found")
	case errors.Is(err, services.ErrUnknownOwner):
		apierrors.Unauthorized(c, "", "Unknown user")
	default:
		respondInternal(c, h.log, err)
	}
}

// respondInternal logs the failure once and hides its detail from the client.
// A storage outage is reported as 503 so clients know to retry later.
func respondInternal(c *gin.Context, log logrus.FieldLogger, err error) {
	middleware.RequestLogger(c, log).WithError(err).Error("Request failed")
	if errors.Is(err, database.ErrConnectivity) {
		apierrors.ServiceUnavailable(c, "")
		return
	}
	apierrors.InternalError(c, "")
}
