package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vcompressor/app/auth"
	"vcompressor/app/database"
	"vcompressor/app/logger"
	"vcompressor/app/middleware"
	"vcompressor/app/model"
	"vcompressor/app/utils"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	responder
	jwtService *auth.JWTService
	log        *logger.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(jwtService *auth.JWTService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		jwtService: jwtService,
		log:        log,
	}
}

// LoginRequest 登录请求结构
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应结构
type LoginResponse struct {
	Token    string      `json:"token"`
	User     *model.User `json:"user"`
	ExpireAt int64       `json:"expire_at"`
}

// Login 用户登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	var user model.User
	db := database.GetDB()
	if err := db.Where("username = ?", req.Username).First(&user).Error; err != nil {
		h.error(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	if err := utils.CheckPassword(req.Password, user.Password); err != nil {
		h.log.Warnf("用户 %s 登录失败: %v", req.Username, err)
		h.error(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	if !user.IsActive {
		h.error(c, http.StatusForbidden, "用户账号已被禁用")
		return
	}

	token, expireAt, err := h.jwtService.GenerateToken(&user)
	if err != nil {
		h.log.Errorf("生成令牌失败: %v", err)
		h.error(c, http.StatusInternalServerError, "生成令牌失败")
		return
	}

	user.TouchLogin()
	if err := db.Model(&user).Update("last_login", user.LastLogin).Error; err != nil {
		h.log.Warnf("更新最后登录时间失败: %v", err)
	}

	h.success(c, LoginResponse{
		Token:    token,
		User:     &user,
		ExpireAt: expireAt.Unix(),
	}, "登录成功")
}

// RefreshToken 刷新令牌
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		h.error(c, http.StatusUnauthorized, "Authorization header is required")
		return
	}

	newToken, expireAt, err := h.jwtService.RefreshToken(token)
	if err != nil {
		h.error(c, http.StatusUnauthorized, "刷新令牌失败: "+err.Error())
		return
	}

	h.success(c, gin.H{
		"token":     newToken,
		"expire_at": expireAt.Unix(),
	}, "刷新成功")
}

// Me 获取当前用户信息
func (h *AuthHandler) Me(c *gin.Context) {
	userID, exists := c.Get(middleware.ContextUserID)
	if !exists {
		h.error(c, http.StatusUnauthorized, "未认证")
		return
	}

	var user model.User
	if err := database.GetDB().First(&user, userID).Error; err != nil {
		h.error(c, http.StatusNotFound, "用户不存在")
		return
	}

	h.success(c, user, "success")
}
