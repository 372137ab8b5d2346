package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aditya2785/web-chat/internal/auth"
	"github.com/aditya2785/web-chat/internal/repo"
	"github.com/aditya2785/web-chat/internal/service"
)

type UserHandler interface {
	Signup(c *gin.Context)
	Login(c *gin.Context)
	CheckAuth(c *gin.Context)
	UpdateProfile(c *gin.Context)
	DeleteUser(c *gin.Context)
}

type userHandler struct {
	service service.UserService
}

func NewUserHandler(service service.UserService) UserHandler {
	return &userHandler{
		service: service,
	}
}

type signupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio"`
}

func (h *userHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.service.Signup(c.Request.Context(), req.FullName, req.Email, req.Password, req.Bio)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingDetails):
			respondError(c, http.StatusBadRequest, "Missing Details")
		case errors.Is(err, service.ErrEmailTaken):
			respondError(c, http.StatusConflict, "Account already exists")
		default:
			respondError(c, http.StatusInternalServerError, "signup failed")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"userData": res.User,
		"token":    res.Token,
		"message":  "Account created successfully",
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *userHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondError(c, http.StatusUnauthorized, "Invalid Credentials")
			return
		}
		respondError(c, http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"userData": res.User,
		"token":    res.Token,
		"message":  "Login successful",
	})
}

func (h *userHandler) CheckAuth(c *gin.Context) {
	user, err := h.service.GetUser(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, http.StatusUnauthorized, "User not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

type updateProfileRequest struct {
	FullName   string `json:"fullName"`
	Bio        string `json:"bio"`
	ProfilePic string `json:"profilePic"`
}

func (h *userHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.service.UpdateProfile(c.Request.Context(), auth.UserID(c), req.FullName, req.Bio, req.ProfilePic)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "update failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

func (h *userHandler) DeleteUser(c *gin.Context) {
	err := h.service.DeleteUser(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSelfDelete):
			respondError(c, http.StatusBadRequest, "You cannot delete your own admin account")
		case errors.Is(err, repo.ErrUserNotFound):
			respondError(c, http.StatusNotFound, "User not found")
		default:
			respondError(c, http.StatusInternalServerError, "delete failed")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User deleted successfully",
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}
