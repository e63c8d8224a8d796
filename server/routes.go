package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"lecture-narrator/constant"
	"lecture-narrator/dto"
	"lecture-narrator/repository"
	"lecture-narrator/service"
)

var errMissingUser = errors.New("missing " + constant.UserIDHeader + " header")

type lectureRoutes struct {
	lectures       service.LectureService
	maxUploadBytes int64
}

// RegisterRoutes mounts the lecture API under /api.
func RegisterRoutes(r *gin.Engine, lectures service.LectureService, maxUploadBytes int64) {
	if err := registerValidators(); err != nil {
		log.Error().Err(err).Msg("failed to register request validators")
	}

	h := &lectureRoutes{lectures: lectures, maxUploadBytes: maxUploadBytes}
	api := r.Group("/api")
	api.GET("/health", health)

	group := api.Group("/lectures")
	group.POST("", h.create)
	group.GET("", h.listMine)
	group.GET("/public", h.listPublic)
	group.GET("/:id", h.get)
	group.GET("/:id/status", h.status)
	group.PATCH("/:id", h.update)
	group.POST("/:id/reupload", h.reupload)
	group.DELETE("/:id", h.delete)
}

var (
	validatorsOnce sync.Once
	validatorsErr  error
)

// registerValidators adds the custom binding tags to gin's validator once per process.
func registerValidators() error {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validatorsErr = errors.New("gin validator engine is not go-playground/validator")
			return
		}
		validatorsErr = v.RegisterValidation("language", func(fl validator.FieldLevel) bool {
			_, ok := constant.ParseLanguage(fl.Field().String())
			return ok
		})
	})
	return validatorsErr
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *lectureRoutes) create(c *gin.Context) {
	owner, ok := requireUser(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)

	var form dto.CreateLectureForm
	if err := c.ShouldBind(&form); err != nil {
		bindError(c, err)
		return
	}
	fileName, data, ok := h.readUpload(c)
	if !ok {
		return
	}

	lang, _ := constant.ParseLanguage(form.Language)
	lecture, err := h.lectures.Create(c.Request.Context(), service.CreateLectureInput{
		OwnerID:            owner,
		Name:               form.Name,
		Language:           lang,
		CustomInstructions: form.CustomInstructions,
		IsPublic:           form.IsPublic,
		Tags:               splitTags(form.Tags),
		FileName:           fileName,
		Data:               data,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, lecture)
}

func (h *lectureRoutes) listMine(c *gin.Context) {
	owner, ok := requireUser(c)
	if !ok {
		return
	}
	var page dto.PageQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		bindError(c, err)
		return
	}
	list, err := h.lectures.ListMine(c.Request.Context(), owner, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *lectureRoutes) listPublic(c *gin.Context) {
	var page dto.PageQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		bindError(c, err)
		return
	}
	list, err := h.lectures.ListPublic(c.Request.Context(), page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *lectureRoutes) get(c *gin.Context) {
	id, ok := lectureID(c)
	if !ok {
		return
	}
	lecture, err := h.lectures.Get(c.Request.Context(), c.GetHeader(constant.UserIDHeader), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lecture)
}

func (h *lectureRoutes) status(c *gin.Context) {
	id, ok := lectureID(c)
	if !ok {
		return
	}
	status, err := h.lectures.Status(c.Request.Context(), c.GetHeader(constant.UserIDHeader), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *lectureRoutes) update(c *gin.Context) {
	owner, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := lectureID(c)
	if !ok {
		return
	}
	var req dto.UpdateLectureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	lecture, err := h.lectures.Update(c.Request.Context(), owner, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lecture)
}

func (h *lectureRoutes) reupload(c *gin.Context) {
	owner, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := lectureID(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)

	var form dto.ReuploadForm
	if err := c.ShouldBind(&form); err != nil {
		bindError(c, err)
		return
	}
	fileName, data, ok := h.readUpload(c)
	if !ok {
		return
	}

	input := service.ReuploadInput{
		FileName:           fileName,
		Data:               data,
		CustomInstructions: form.CustomInstructions,
	}
	if lang, ok := constant.ParseLanguage(form.Language); ok {
		input.Language = &lang
	}
	lecture, err := h.lectures.Reupload(c.Request.Context(), owner, id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, lecture)
}

func (h *lectureRoutes) delete(c *gin.Context) {
	owner, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := lectureID(c)
	if !ok {
		return
	}
	if err := h.lectures.Delete(c.Request.Context(), owner, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *lectureRoutes) readUpload(c *gin.Context) (string, []byte, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return "", nil, false
	}
	if header.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the upload limit"})
		return "", nil, false
	}
	data, err := readMultipart(header)
	if err != nil {
		respondError(c, err)
		return "", nil, false
	}
	return header.Filename, data, true
}

func readMultipart(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func requireUser(c *gin.Context) (string, bool) {
	owner := strings.TrimSpace(c.GetHeader(constant.UserIDHeader))
	if owner == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errMissingUser.Error()})
		return "", false
	}
	return owner, true
}

func lectureID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lecture id"})
		return uuid.Nil, false
	}
	return id, true
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func bindError(c *gin.Context, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func respondError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	var maxBytesErr *http.MaxBytesError
	var storageErr *service.StorageError

	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidInput), errors.As(err, &validationErrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &maxBytesErr):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
	case errors.As(err, &storageErr):
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("storage failure")
		c.JSON(http.StatusBadGateway, gin.H{"error": "file storage unavailable"})
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
