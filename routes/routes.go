package routes

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"bikerental/handlers"
	"bikerental/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthMiddleware 驗證 JWT token，並提取 actor id (sub) 和 role
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			handlers.AbortWithError(c, http.StatusUnauthorized, "缺少 Authorization 標頭",
				"Authorization header is required", "ERR_NO_AUTH_HEADER")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			handlers.AbortWithError(c, http.StatusUnauthorized, "無效的 Authorization 格式",
				"Authorization header must be in the format 'Bearer <token>'", "ERR_INVALID_AUTH_FORMAT")
			return
		}

		// 明確要求檢查 exp 字段
		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return utils.JWTSecret, nil
		}, jwt.WithExpirationRequired())
		if err != nil {
			log.Printf("Token parsing error: %v", err)
			if errors.Is(err, jwt.ErrTokenExpired) {
				handlers.AbortWithError(c, http.StatusUnauthorized, "token 已過期", "Token has expired", "ERR_TOKEN_EXPIRED")
			} else {
				handlers.AbortWithError(c, http.StatusUnauthorized, "無效的 token", err.Error(), "ERR_INVALID_TOKEN")
			}
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			handlers.AbortWithError(c, http.StatusUnauthorized, "無效的 token 內容",
				"Invalid token claims or token is not valid", "ERR_INVALID_CLAIMS")
			return
		}

		actorID, err := claims.GetSubject()
		if err != nil || actorID == "" {
			log.Printf("Missing or invalid sub in token")
			handlers.AbortWithError(c, http.StatusUnauthorized, "無效的使用者 ID", "Invalid sub in token", "ERR_INVALID_ACTOR")
			return
		}

		role, ok := claims["role"].(string)
		if !ok || (role != utils.RoleRenter && role != utils.RoleAdmin) {
			log.Printf("Missing or invalid role in token: %v", claims["role"])
			handlers.AbortWithError(c, http.StatusUnauthorized, "無效的角色", "Invalid role in token", "ERR_INVALID_ROLE")
			return
		}

		c.Set(handlers.ActorIDKey, actorID)
		c.Set(handlers.RoleKey, role)
		c.Next()
	}
}

// RoleMiddleware 檢查角色是否符合要求
func RoleMiddleware(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(handlers.RoleKey)
		if role == "" {
			handlers.AbortWithError(c, http.StatusUnauthorized, "無法獲取角色資訊", "Role not found in context", "ERR_ROLE_NOT_FOUND")
			return
		}

		// 允許 admin 角色訪問所有端點
		if role == utils.RoleAdmin {
			c.Next()
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				c.Next()
				return
			}
		}

		handlers.AbortWithError(c, http.StatusForbidden, "權限不足", "Insufficient role permissions", "ERR_INSUFFICIENT_PERMISSIONS")
	}
}

func Path(router *gin.RouterGroup, h *handlers.Handler) {
	// 版本控制
	v1 := router.Group("/v1")
	{
		// 測試路由
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "pong"})
		})

		// 車輛路由
		bikes := v1.Group("/bikes")
		{
			bikes.GET("", h.ListBikes)
			bikes.GET("/:id", h.GetBike)
			bikes.POST("", AuthMiddleware(), RoleMiddleware(utils.RoleAdmin), h.CreateBike)
		}

		// 租借路由：需要 token 驗證
		rentals := v1.Group("/rentals")
		rentals.Use(AuthMiddleware(), RoleMiddleware(utils.RoleRenter))
		{
			rentals.POST("", h.StartRental)
			rentals.POST("/:id/return", h.ReturnBike)
			rentals.GET("", h.ListMyRentals)
			rentals.GET("/:id", h.GetRental)
		}

		// 管理員路由
		admin := v1.Group("/admin")
		admin.Use(AuthMiddleware(), RoleMiddleware(utils.RoleAdmin))
		{
			admin.GET("/stats", h.Stats)
		}
	}
}
