package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/explab-api/internal/dto"
	"github.com/noah-isme/explab-api/internal/service"
	"github.com/noah-isme/explab-api/internal/utils"
)

const maxUploadFileBytes = 1 << 20

// SubmissionHandler manages submission endpoints.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes. guards run before a submission is accepted.
func (h *SubmissionHandler) Register(tasks, submissions fiber.Router, guards ...fiber.Handler) {
	create := append(append([]fiber.Handler{}, guards...), h.create)
	tasks.Post("/:taskId/submissions", create...)
	tasks.Get("/:taskId/submissions", h.list)
	submissions.Get("/:id", h.get)
}

func (h *SubmissionHandler) create(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	taskID, err := parseUintParam(c, "taskId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SubmissionCreateRequest
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		payload, err = parseMultipartSubmission(c)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
	} else if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	submission, err := h.service.Submit(requestContext(c), userID, taskID, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission recorded", submission)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.Get(requestContext(c), id, userIDFromContext(c), userRoleFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

// list returns the caller's submissions for a task, newest first. Staff may
// read another user's with ?user_id=.
func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	userID, ferr := subjectUser(c)
	if ferr != nil {
		return utils.SendError(c, ferr.Code, ferr.Message)
	}

	taskID, err := parseUintParam(c, "taskId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submissions, err := h.service.ListForTask(requestContext(c), userID, taskID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, submissions, "submissions retrieved", fiber.Map{"count": len(submissions)})
}

// parseMultipartSubmission reads experiment_id, an optional answer or code
// field and any number of "files" parts. Part file names are reduced to their
// base name by the multipart reader; directory trees go through the JSON body.
func parseMultipartSubmission(c *fiber.Ctx) (dto.SubmissionCreateRequest, error) {
	var payload dto.SubmissionCreateRequest

	experimentID, err := parseFormUint(c, "experiment_id")
	if err != nil {
		return payload, err
	}
	payload.ExperimentID = experimentID

	if answer := c.FormValue("answer"); answer != "" {
		if json.Valid([]byte(answer)) {
			payload.Answer = json.RawMessage(answer)
		} else {
			encoded, err := json.Marshal(answer)
			if err != nil {
				return payload, err
			}
			payload.Answer = encoded
		}
	}
	if code := c.FormValue("code"); code != "" {
		payload.Code = &code
	}

	form, err := c.MultipartForm()
	if err != nil {
		return payload, errors.New("invalid multipart form")
	}
	for _, header := range form.File["files"] {
		content, err := readFormFile(header)
		if err != nil {
			return payload, err
		}
		payload.Files = append(payload.Files, dto.SubmissionFile{Name: header.Filename, Content: content})
	}

	return payload, nil
}

func readFormFile(header *multipart.FileHeader) (string, error) {
	if header.Size > maxUploadFileBytes {
		return "", fmt.Errorf("file %s exceeds %d bytes", header.Filename, maxUploadFileBytes)
	}
	file, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("unable to read %s", header.Filename)
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadFileBytes+1))
	if err != nil {
		return "", fmt.Errorf("unable to read %s", header.Filename)
	}
	return string(content), nil
}

func parseFormUint(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.FormValue(key))
	if value == "" {
		return 0, errors.New("missing " + key)
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return uint(parsed), nil
}
