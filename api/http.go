// Package api builds the HTTP routers of the three services and runs them
// with graceful shutdown.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/videonest/videonest/auth"
	"github.com/videonest/videonest/handlers"
	"github.com/videonest/videonest/log"
	"github.com/videonest/videonest/middleware"
)

const shutdownTimeout = 5 * time.Second

// ListenAndServe runs the server until ctx is cancelled, then shuts it down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, router http.Handler) error {
	server := http.Server{Addr: addr, Handler: router}
	ctx, cancel := context.WithCancel(ctx)

	log.LogNoVideoID("Starting HTTP server", "host", addr)

	var err error
	go func() {
		err = server.ListenAndServe()
		cancel()
	}()

	<-ctx.Done()
	if err != nil {
		return err
	}

	ctx, cancel = context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}

// NewVideoAPIRouter serves the public read API of the channel service.
func NewVideoAPIRouter(catalog handlers.VideoCatalog) *httprouter.Router {
	router := httprouter.New()
	withLogging := middleware.LogRequest()

	videoHandlers := &handlers.VideoHandlersCollection{Videos: catalog}

	router.GET("/health", withLogging(handlers.Healthcheck()))
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	router.GET("/channel_actions/videos/author/:author_id",
		withLogging(middleware.Observed("author_videos", videoHandlers.AuthorVideos())))
	router.GET("/channel_actions/videos/batch",
		withLogging(middleware.Observed("batch_videos", videoHandlers.BatchVideos())))
	router.GET("/channel_actions/video/",
		withLogging(middleware.Observed("video_info", videoHandlers.VideoInfo())))

	return router
}

// NewAuthRouter serves the auth service endpoints.
func NewAuthRouter(service *auth.Service) *httprouter.Router {
	router := httprouter.New()
	withLogging := middleware.LogRequest()

	authHandlers := &handlers.AuthHandlersCollection{Service: service}

	router.GET("/health", withLogging(handlers.Healthcheck()))
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	router.POST("/auth/register/", withLogging(authHandlers.Register()))
	router.POST("/auth/login/", withLogging(authHandlers.Login()))
	router.POST("/auth/refresh/", withLogging(authHandlers.Refresh()))
	router.POST("/auth/logout/",
		withLogging(middleware.IsAuthenticated(service, authHandlers.Logout())))
	router.POST("/auth/change_password/",
		withLogging(middleware.IsAuthenticated(service, authHandlers.ChangePassword())))

	return router
}

// NewWorkerRouter exposes liveness and metrics for the transcoder worker.
func NewWorkerRouter() *httprouter.Router {
	router := httprouter.New()
	router.GET("/health", handlers.Healthcheck())
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	return router
}
