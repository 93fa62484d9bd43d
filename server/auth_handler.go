package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"AuraFM/core/auth"
	"AuraFM/logger"
	"AuraFM/model"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username"` // 可以是用户名或邮箱
	Password string `json:"password"`
}

// RegisterHandler handles user registration requests.
func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" || req.Email == "" {
		respondError(w, http.StatusBadRequest, "username, password and email are required")
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("密码哈希失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to process password")
		return
	}

	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashedPassword,
	}

	userID, err := h.userRepo.CreateUser(user)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "duplicate entry") {
			respondError(w, http.StatusConflict, "username or email already exists")
		} else {
			logger.Error("创建用户失败", logger.String("username", req.Username), logger.ErrorField(err))
			respondError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}
	user.ID = userID

	token, err := auth.GenerateToken(h.cfg, userID, user.Username)
	if err != nil {
		logger.Error("生成Token失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	logger.Info("用户注册成功", logger.Int64("userId", userID), logger.String("username", user.Username))
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"token":   token,
		"user":    user,
	})
}

// LoginHandler handles user login requests.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username/email and password are required")
		return
	}

	// 支持用户名或邮箱登录
	var user *model.User
	var err error
	if strings.Contains(req.Username, "@") {
		user, err = h.userRepo.GetUserByEmail(req.Username)
	} else {
		user, err = h.userRepo.GetUserByUsername(req.Username)
	}
	if err != nil {
		logger.Error("查询用户失败", logger.String("username", req.Username), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		// 用户不存在和密码错误给同一个回答，不泄露账号存在性
		respondError(w, http.StatusUnauthorized, "invalid username/email or password")
		return
	}

	token, err := auth.GenerateToken(h.cfg, user.ID, user.Username)
	if err != nil {
		logger.Error("生成Token失败", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	logger.Info("登录成功", logger.String("username", user.Username))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"token":   token,
		"user":    user,
	})
}
