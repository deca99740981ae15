package service

import (
	"time"

	"github.com/clipstash/clipstash-backend/internal/media/biz"
)

// GrantRequest 两阶段上传授权请求
type GrantRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
	SizeBytes   int64  `json:"size_bytes" binding:"omitempty,min=0"`
}

// MediaResponse 媒体对象响应
type MediaResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	StorageKey  string `json:"storage_key"`
	PublicURL   string `json:"public_url"`
	Complete    bool   `json:"complete"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// GrantResponse 上传授权响应
type GrantResponse struct {
	ID         string `json:"id"`
	StorageKey string `json:"storage_key"`
	GrantURL   string `json:"grant_url"`
	ExpiresAt  string `json:"expires_at"`
}

// ListResponse 列表响应
type ListResponse struct {
	Items []MediaResponse `json:"items"`
	Count int             `json:"count"`
}

func toMediaResponse(obj *biz.MediaObject) *MediaResponse {
	return &MediaResponse{
		ID:          obj.ID,
		Filename:    obj.Filename,
		ContentType: obj.ContentType,
		SizeBytes:   obj.SizeBytes,
		StorageKey:  obj.StorageKey,
		PublicURL:   obj.PublicURL,
		Complete:    obj.IsComplete(),
		CreatedAt:   obj.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   obj.UpdatedAt.Format(time.RFC3339),
	}
}

func toGrantResponse(grant *biz.UploadGrant) *GrantResponse {
	return &GrantResponse{
		ID:         grant.ID,
		StorageKey: grant.StorageKey,
		GrantURL:   grant.URL,
		ExpiresAt:  grant.ExpiresAt.Format(time.RFC3339),
	}
}

func toListResponse(result *biz.ListResult) *ListResponse {
	items := make([]MediaResponse, len(result.Items))
	for i, obj := range result.Items {
		items[i] = *toMediaResponse(obj)
	}
	return &ListResponse{
		Items: items,
		Count: result.Count,
	}
}
