package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	ctxOperatorID = "operator_id"
	ctxOperator   = "operator"
	ctxIsAdmin    = "is_admin"
)

// tokenQueryParam - браузерный websocket не умеет слать Authorization
const tokenQueryParam = "access_token"

// jwtMiddleware пускает запросы с действующим токеном оператора.
// Без выпускающего (auth выключен) все запросы считаются админскими.
func (rs *RestServer) jwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rs.issuer == nil {
			c.Set(ctxIsAdmin, true)
			c.Next()
			return
		}

		token, msg := bearerToken(c)
		if token == "" {
			abort(c, http.StatusUnauthorized, msg)
			return
		}
		claims, err := rs.issuer.Validate(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Недействительный токен")
			return
		}

		c.Set(ctxOperatorID, claims.OperatorID)
		c.Set(ctxOperator, claims.Username)
		c.Set(ctxIsAdmin, claims.IsAdmin)
		c.Next()
	}
}

// bearerToken достаёт токен из "Authorization: Bearer ...", а для
// websocket-рукопожатия ещё и из ?access_token=. Пустой токен идёт с причиной.
func bearerToken(c *gin.Context) (token, reason string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if websocket.IsWebSocketUpgrade(c.Request) {
			if t := c.Query(tokenQueryParam); t != "" {
				return t, ""
			}
		}
		return "", "Отсутствует токен авторизации"
	}
	scheme, t, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(t) == "" {
		return "", "Неверный формат токена"
	}
	return strings.TrimSpace(t), ""
}

// adminMiddleware пропускает только администраторов
func (rs *RestServer) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ctxIsAdmin) {
			abort(c, http.StatusForbidden, "Недостаточно прав доступа")
			return
		}
		c.Next()
	}
}

// operatorName - имя оператора для журналов; "anonymous" при выключенном auth
func operatorName(c *gin.Context) string {
	if name := c.GetString(ctxOperator); name != "" {
		return name
	}
	return "anonymous"
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, GenericResponse{
		Success: false,
		Message: message,
	})
}
