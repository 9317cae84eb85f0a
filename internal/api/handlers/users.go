package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceauth/internal/face"
	"github.com/your-org/faceauth/internal/storage"
	"github.com/your-org/faceauth/pkg/dto"
)

// UserHandler serves the admin identity endpoints under /v1.
type UserHandler struct {
	svc   *face.Service
	store storage.Store
}

func NewUserHandler(svc *face.Service, store storage.Store) *UserHandler {
	return &UserHandler{svc: svc, store: store}
}

func (h *UserHandler) List(c *gin.Context) {
	idents, err := h.store.ListIdentities(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.UserResponse, 0, len(idents))
	for _, ident := range idents {
		count, _ := h.store.CountSamplesFor(c.Request.Context(), ident.ID)
		user := dto.UserResponse{
			ID:          ident.ID,
			Name:        ident.Name,
			Level:       ident.Level,
			SampleCount: count,
			CreatedAt:   ident.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
		if ident.Email != nil {
			user.Email = *ident.Email
		}
		resp = append(resp, user)
	}

	c.JSON(http.StatusOK, gin.H{"users": resp, "total": len(resp)})
}

func (h *UserHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	ident, err := h.store.GetIdentity(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ident == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	count, _ := h.store.CountSamplesFor(c.Request.Context(), id)

	user := dto.UserResponse{
		ID:          ident.ID,
		Name:        ident.Name,
		Level:       ident.Level,
		SampleCount: count,
		CreatedAt:   ident.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if ident.Email != nil {
		user.Email = *ident.Email
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if err := h.svc.DeleteIdentity(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}
