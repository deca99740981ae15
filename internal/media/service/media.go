package service

import (
	"errors"
	"io"
	"strconv"

	"github.com/clipstash/clipstash-backend/internal/media/biz"
	"github.com/clipstash/clipstash-backend/internal/media/queue"
	apperrors "github.com/clipstash/clipstash-backend/internal/pkg/errors"
	"github.com/clipstash/clipstash-backend/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxUploadBytes 直传协议允许的最大载荷
const maxUploadBytes = 512 << 20 // 512 MiB

type MediaService struct {
	uc     *biz.MediaUseCase
	cache  biz.Cache
	worker *queue.Worker
	logger *zap.Logger
}

func NewMediaService(
	uc *biz.MediaUseCase,
	cache biz.Cache,
	worker *queue.Worker,
	logger *zap.Logger,
) *MediaService {
	return &MediaService{
		uc:     uc,
		cache:  cache,
		worker: worker,
		logger: logger,
	}
}

// RegisterRoutes 注册路由
func (s *MediaService) RegisterRoutes(r *gin.RouterGroup) {
	media := r.Group("/media")
	{
		media.POST("", s.Upload)
		media.POST("/uploads", s.RequestGrant)
		media.POST("/:id/complete", s.CompleteUpload)
		media.GET("", s.List)
		media.GET("/stats", s.Stats)
		media.GET("/:id", s.Get)
		media.DELETE("/:id", s.Delete)
	}
}

// Upload 直传上传（单请求携带字节）
func (s *MediaService) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.BadRequest(c, "invalid file or field name is not 'file'")
		return
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		response.ErrorWithCode(c, apperrors.ErrMediaFileTooLarge)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		response.InternalError(c, "failed to read file")
		return
	}

	contentType := c.PostForm("content_type")
	if contentType == "" {
		contentType = header.Header.Get("Content-Type")
	}

	s.logger.Info("direct upload",
		zap.String("filename", header.Filename),
		zap.String("content_type", contentType),
		zap.Int("size", len(data)))

	obj, err := s.uc.Upload(c.Request.Context(), header.Filename, contentType, data)
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Created(c, toMediaResponse(obj))
}

// RequestGrant 请求两阶段上传授权
func (s *MediaService) RequestGrant(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid parameters")
		return
	}

	grant, err := s.uc.RequestUploadGrant(c.Request.Context(), req.Filename, req.ContentType, req.SizeBytes)
	if err != nil {
		s.logger.Error("failed to issue upload grant", zap.Error(err))
		response.ErrorWithCode(c, apperrors.ErrMediaGrantFailed)
		return
	}

	response.Created(c, toGrantResponse(grant))
}

// CompleteUpload 两阶段上传完成回调
func (s *MediaService) CompleteUpload(c *gin.Context) {
	id := c.Param("id")

	obj, err := s.uc.CompleteUpload(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Success(c, toMediaResponse(obj))
}

// Get 按 id 查询
func (s *MediaService) Get(c *gin.Context) {
	id := c.Param("id")

	obj, err := s.uc.Get(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Success(c, toMediaResponse(obj))
}

// List 按创建时间倒序列表
func (s *MediaService) List(c *gin.Context) {
	pageSize := biz.DefaultPageSize
	if raw := c.Query("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			response.BadRequest(c, "invalid page_size")
			return
		}
		pageSize = n
	}

	result, err := s.uc.List(c.Request.Context(), pageSize)
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Success(c, toListResponse(result))
}

// Delete 删除对象
func (s *MediaService) Delete(c *gin.Context) {
	id := c.Param("id")

	if err := s.uc.Delete(c.Request.Context(), id); err != nil {
		s.handleError(c, err)
		return
	}

	response.Success(c, nil)
}

// Stats 运维诊断：缓存分组规模与队列积压
func (s *MediaService) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	groups := make(map[string]int64)
	for _, group := range []string{
		biz.GroupObjectsByID,
		biz.GroupListResults,
		biz.GroupPendingUploads,
		biz.GroupExistenceChecks,
	} {
		size, err := s.cache.GroupSize(ctx, group)
		if err != nil {
			// 缓存不可用时诊断接口降级而非报错
			s.logger.Warn("failed to read cache group size",
				zap.String("group", group),
				zap.Error(err))
			continue
		}
		groups[group] = size
	}

	queueSize, err := s.worker.QueueSize(ctx)
	if err != nil {
		queueSize = -1
	}

	response.Success(c, gin.H{
		"cache_groups":     groups,
		"completion_queue": queueSize,
	})
}

// handleError 业务错误到 HTTP 错误的映射
func (s *MediaService) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, biz.ErrObjectNotFound):
		response.ErrorWithCode(c, apperrors.ErrMediaNotFound)
	case errors.Is(err, biz.ErrEmptyPayload):
		response.ErrorWithCode(c, apperrors.ErrMediaEmptyPayload)
	case errors.Is(err, biz.ErrInvalidID):
		response.ErrorWithCode(c, apperrors.ErrMediaInvalidID)
	case errors.Is(err, biz.ErrStorageFailed):
		s.logger.Error("blob storage operation failed", zap.Error(err))
		response.ErrorWithCode(c, apperrors.ErrMediaStorageFailed)
	case errors.Is(err, biz.ErrPersistFailed):
		s.logger.Error("metadata persistence failed", zap.Error(err))
		response.ErrorWithCode(c, apperrors.ErrMediaPersistFailed)
	default:
		s.logger.Error("media operation failed", zap.Error(err))
		response.InternalError(c, err.Error())
	}
}
