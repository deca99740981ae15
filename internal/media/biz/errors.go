package biz

import "errors"

// 业务错误（由 service 层映射为 HTTP 错误码）
var (
	ErrObjectNotFound = errors.New("media object not found")
	ErrEmptyPayload   = errors.New("upload payload is empty")
	ErrInvalidID      = errors.New("invalid media object id")
	ErrStorageFailed  = errors.New("blob storage operation failed")
	ErrPersistFailed  = errors.New("metadata persistence failed")
)
