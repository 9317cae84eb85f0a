package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceauth/internal/face"
	"github.com/your-org/faceauth/internal/storage"
	"github.com/your-org/faceauth/internal/vision"
	"github.com/your-org/faceauth/pkg/dto"
)

// FaceHandler serves the enrollment and authentication endpoints.
type FaceHandler struct {
	svc *face.Service
}

func NewFaceHandler(svc *face.Service) *FaceHandler {
	return &FaceHandler{svc: svc}
}

func (h *FaceHandler) Enroll(c *gin.Context) {
	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ident, err := h.svc.Enroll(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, face.ErrValidation), errors.Is(err, vision.ErrDecode):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, vision.ErrNoFace):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no face detected"})
		case errors.Is(err, storage.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, face.ErrTrainingFailed):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "training failed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, dto.EnrollResponse{
		OK:    true,
		ID:    ident.ID,
		Name:  ident.Name,
		Level: ident.Level,
	})
}

func (h *FaceHandler) Authenticate(c *gin.Context) {
	var req dto.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.Authenticate(c.Request.Context(), req.Image)
	if err != nil {
		switch {
		case errors.Is(err, face.ErrValidation), errors.Is(err, vision.ErrDecode):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	resp := dto.AuthResponse{Matched: res.Matched, Reason: res.Reason}
	if res.Matched {
		d := res.Distance
		resp.Name = res.Identity.Name
		resp.Level = res.Identity.Level
		resp.Confidence = &d
	}
	c.JSON(http.StatusOK, resp)
}

func (h *FaceHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ident, err := h.svc.Login(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, face.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, storage.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, face.ErrNoPassword):
			c.JSON(http.StatusForbidden, gin.H{"error": "password login not enabled for this user"})
		case errors.Is(err, face.ErrBadPassword):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong password"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	user := dto.UserResponse{
		ID:        ident.ID,
		Name:      ident.Name,
		Level:     ident.Level,
		CreatedAt: ident.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if ident.Email != nil {
		user.Email = *ident.Email
	}
	c.JSON(http.StatusOK, dto.LoginResponse{OK: true, User: user})
}

// Health reports enrollment totals alongside liveness.
func (h *FaceHandler) Health(c *gin.Context) {
	registered, users, err := h.svc.Counts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:     "ok",
		Registered: registered,
		Users:      users,
	})
}
