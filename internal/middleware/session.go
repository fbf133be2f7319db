package middleware

import "github.com/gin-gonic/gin"

// SessionBusinessKey 是会话租户在 gin context 里的键。
const SessionBusinessKey = "session_business_id"

// SessionBusiness 把登录网关下发的 X-Business-ID 头放进请求上下文。
// 核心不做认证，只消费解析好的身份；头缺失时留空，由提交路径的
// 租户解析链决定是否硬失败。
func SessionBusiness() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader("X-Business-ID"); id != "" {
			c.Set(SessionBusinessKey, id)
		}
		c.Next()
	}
}

// SessionBusinessID 读取会话租户，未设置返回空串。
func SessionBusinessID(c *gin.Context) string {
	v, ok := c.Get(SessionBusinessKey)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
