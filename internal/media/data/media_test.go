package data

import (
	"testing"
	"time"

	"github.com/clipstash/clipstash-backend/internal/media/biz"
	"github.com/stretchr/testify/assert"
)

func TestTableName(t *testing.T) {
	assert.Equal(t, "media_objects", MediaObjectPO{}.TableName())
}

func TestDomainPOMapping(t *testing.T) {
	now := time.Now()
	obj := &biz.MediaObject{
		ID:          "obj-1",
		Filename:    "a.webm",
		ContentType: "video/webm",
		SizeBytes:   10,
		StorageKey:  "videos/obj-1.webm",
		PublicURL:   "http://localhost:9000/media/videos/obj-1.webm",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	po := toPO(obj)
	assert.Equal(t, obj.ID, po.ID)
	assert.Equal(t, obj.Filename, po.Filename)
	assert.Equal(t, obj.ContentType, po.ContentType)
	assert.Equal(t, obj.SizeBytes, po.SizeBytes)
	assert.Equal(t, obj.StorageKey, po.StorageKey)
	assert.Equal(t, obj.PublicURL, po.PublicURL)

	back := toDomain(po)
	assert.Equal(t, obj, back)
}

func TestProvisionalRecordMapping(t *testing.T) {
	obj := &biz.MediaObject{
		ID:         "obj-2",
		Filename:   "b.webm",
		StorageKey: "videos/obj-2.webm",
	}

	po := toPO(obj)
	assert.Zero(t, po.SizeBytes)
	assert.Empty(t, po.PublicURL)

	back := toDomain(po)
	assert.False(t, back.IsComplete())
}
