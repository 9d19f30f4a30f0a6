package service

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server 测量任务 HTTP 服务
// 停止时先关闭监听，再等待提交后仍在发送的驳回升级通知
type Server struct {
	httpServer *http.Server
	drain      func()
	logger     *zap.Logger
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	return &Server{httpServer: s, logger: logger}
}

// DrainOnStop 注册停止时需要等待的后台任务，一般为 MeasureTaskService.WaitEscalations
func (s *Server) DrainOnStop(fn func()) {
	s.drain = fn
}

func (s *Server) Start() error {
	s.logger.Info("Starting slideboard-measure HTTP server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Stop 受 ctx 限时；超时返回 ctx.Err()，未完成的升级通知会被放弃
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping slideboard-measure HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if s.drain == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.drain()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("Pending escalations drained")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Shutdown timed out waiting for escalations", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}
