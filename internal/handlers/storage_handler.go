package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classable/classable/internal/services"
	"github.com/classable/classable/pkg/response"
)

// StorageHandler hands out presigned URLs for class materials. Upload is
// teacher-only; download requires class membership or ownership, enforced
// here because the object store itself has no notion of rosters.
type StorageHandler struct {
	storage *services.StorageService
	classes *services.ClassService
}

func NewStorageHandler(storage *services.StorageService, classes *services.ClassService) *StorageHandler {
	return &StorageHandler{storage: storage, classes: classes}
}

type presignUploadRequest struct {
	ClassID  string `json:"class_id" validate:"required,uuid"`
	Filename string `json:"filename" validate:"required,max=255"`
}

type presignDownloadRequest struct {
	ObjectKey string `json:"object_key" validate:"required,max=1024"`
}

// PresignUpload handles POST /api/storage/uploads.
func (h *StorageHandler) PresignUpload(c *gin.Context) {
	var req presignUploadRequest
	if !bindAndValidate(c, &req) {
		return
	}

	// Roster check doubles as an ownership check: only the owner (or a
	// superadmin) can read the roster.
	if _, err := h.classes.Roster(c.Request.Context(), currentIdentity(c), req.ClassID); err != nil {
		response.Error(c, err)
		return
	}

	target, err := h.storage.PresignUpload(c.Request.Context(), req.ClassID, req.Filename)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, target)
}

// PresignDownload handles POST /api/storage/downloads.
func (h *StorageHandler) PresignDownload(c *gin.Context) {
	var req presignDownloadRequest
	if !bindAndValidate(c, &req) {
		return
	}

	url, err := h.storage.PresignDownload(c.Request.Context(), req.ObjectKey)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"download_url": url})
}
