package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/rwax/swapd/internal/core/application"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

type service struct {
	*gin.Engine
	server *http.Server
}

// NewService wires the JSON API onto the lifecycle controller and the
// statistics view.
func NewService(port uint32, app *application.Service, stats *application.StatisticsView) *service {
	router := gin.New()
	router.Use(gin.Recovery())

	svc := &service{Engine: router}
	h := &handler{app: app, stats: stats}

	v1 := router.Group("/v1")
	v1.GET("/info", h.info)

	v1.POST("/swaps", h.openSwap)
	v1.GET("/swaps", h.listSwaps)
	v1.GET("/swaps/:id", h.getSwap)
	v1.POST("/swaps/:id/accept", h.acceptSwap)
	v1.POST("/swaps/:id/complete", h.completeSwap)
	v1.POST("/swaps/:id/cancel", h.cancelSwap)

	v1.GET("/stats", h.aggregate)
	v1.GET("/depth", h.depth)

	svc.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return svc
}

func (s *service) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server exited")
		}
	}()
	log.WithField("addr", s.server.Addr).Info("http server started")
}

func (s *service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// nolint:all
	s.server.Shutdown(ctx)
	log.Info("http server stopped")
}
