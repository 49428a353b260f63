package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/eaglebank/accounts/internal/service"
	"github.com/eaglebank/accounts/shared/cqrs"
	"github.com/eaglebank/accounts/shared/middleware"
	"github.com/eaglebank/accounts/shared/models"
	"github.com/eaglebank/accounts/shared/utils"
)

// AccountCommander defines the write-side operations used by AccountHandler.
type AccountCommander interface {
	Register(context.Context, cqrs.RegisterCommand) (*models.UserView, error)
	UpdateUser(context.Context, cqrs.UpdateUserCommand) (*models.UserView, error)
	DeleteUser(context.Context, cqrs.DeleteUserCommand) error
}

// AccountQuerier defines the read-side operations used by AccountHandler.
type AccountQuerier interface {
	ListUsers(context.Context, cqrs.ListUsersQuery) ([]models.UserView, error)
	GetUser(context.Context, cqrs.GetUserQuery) (*models.UserView, error)
}

// AccountHandler routes requests to the command or query service as appropriate.
type AccountHandler struct {
	commands AccountCommander
	queries  AccountQuerier
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,maxbytes=72"`
	Email    string `json:"email" validate:"required,email"`
}

type UpdateUserRequest struct {
	Username *string `json:"username" validate:"omitempty,max=64"`
	Email    *string `json:"email" validate:"omitempty,email"`
}

type MessageResponse struct {
	Message string           `json:"message"`
	User    *models.UserView `json:"user,omitempty"`
}

func NewAccountHandler(commands AccountCommander, queries AccountQuerier) *AccountHandler {
	return &AccountHandler{commands: commands, queries: queries}
}

func (h *AccountHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	view, err := h.commands.Register(c.Request.Context(), cqrs.RegisterCommand{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyExists):
			middleware.RespondWithError(c, http.StatusBadRequest, "User already exists")
		case errors.Is(err, utils.ErrPasswordTooLong):
			middleware.RespondWithError(c, http.StatusBadRequest, "Password too long")
		default:
			serverError(c, err)
		}
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{Message: "User registered successfully", User: view})
}

func (h *AccountHandler) ListUsers(c *gin.Context) {
	views, err := h.queries.ListUsers(c.Request.Context(), cqrs.ListUsersQuery{})
	if err != nil {
		serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *AccountHandler) GetUser(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	view, err := h.queries.GetUser(c.Request.Context(), cqrs.GetUserQuery{UserID: userID})
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			middleware.RespondWithError(c, http.StatusNotFound, "User not found")
			return
		}
		serverError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *AccountHandler) UpdateUser(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}
	if req.Username != nil && strings.TrimSpace(*req.Username) == "" {
		middleware.RespondWithValidationError(c, []middleware.ValidationError{{
			Field: "Username", Message: "This field cannot be empty", Type: "required",
		}})
		return
	}

	view, err := h.commands.UpdateUser(c.Request.Context(), cqrs.UpdateUserCommand{
		UserID:   userID,
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			middleware.RespondWithError(c, http.StatusNotFound, "User not found")
		case errors.Is(err, service.ErrAlreadyExists):
			middleware.RespondWithError(c, http.StatusBadRequest, "User already exists")
		default:
			serverError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "User updated successfully", User: view})
}

func (h *AccountHandler) DeleteUser(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	err := h.commands.DeleteUser(c.Request.Context(), cqrs.DeleteUserCommand{UserID: userID})
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			middleware.RespondWithError(c, http.StatusNotFound, "User not found")
			return
		}
		serverError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "User deleted successfully"})
}

func userIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid user id")
		return 0, false
	}
	return id, true
}

// serverError hides the cause from the client and attaches it to the gin
// context for the request logger.
func serverError(c *gin.Context, err error) {
	_ = c.Error(err)
	middleware.RespondWithError(c, http.StatusInternalServerError, "Server error")
}
