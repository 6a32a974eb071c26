package middleware

import (
	"sync"
	"time"

	"PNotepad/logger"
	"PNotepad/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 全局单例 + once
var (
	globalMgr *MiddlewareManager
	once      sync.Once
)

// MiddlewareManager 可以自由注册/注销中间件
// Registered handlers run in order and must not call c.Next.
type MiddlewareManager struct {
	mu   sync.RWMutex
	mids []gin.HandlerFunc
}

func NewManager() *MiddlewareManager {
	return &MiddlewareManager{}
}

// Manager ：获取全局实例（惰性初始化，线程安全）
func Manager() *MiddlewareManager {
	once.Do(func() {
		globalMgr = NewManager()
	})
	return globalMgr
}

func (m *MiddlewareManager) Add(h gin.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = append(m.mids, h)
}

func (m *MiddlewareManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = nil
}

// Use 返回一个 gin.HandlerFunc，作为总控挂载到 Engine 上
func (m *MiddlewareManager) Use() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.mu.RLock()
		handlers := append([]gin.HandlerFunc{}, m.mids...) // 拷贝一份快照
		m.mu.RUnlock()

		for _, h := range handlers {
			h(c)
			if c.IsAborted() {
				return
			}
		}
		c.Next()
	}
}

// AccessLog logs one line per request once the rest of the chain is done.
func AccessLog() gin.HandlerFunc {
	log := logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("remote", c.ClientIP()))
	}
}

// Recovery turns a handler panic into a logged 500.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("[http] panic recovered",
					zap.String("path", c.Request.URL.Path),
					zap.Error(errs.ErrPanic(r)))
				c.AbortWithStatus(500)
			}
		}()
		c.Next()
	}
}
