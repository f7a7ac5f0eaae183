package api

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/streamforge/vodflow/config"
	"github.com/streamforge/vodflow/handlers"
	"github.com/streamforge/vodflow/log"
	"github.com/streamforge/vodflow/middleware"
	"github.com/streamforge/vodflow/pipeline"
)

func ListenAndServe(ctx context.Context, cli config.Cli, coordinator *pipeline.Coordinator, videoStore pipeline.VideoStore) error {
	router := NewVodflowAPIRouter(coordinator, videoStore, cli.APIToken)
	server := http.Server{Addr: cli.HTTPAddress, Handler: router}
	ctx, cancel := context.WithCancel(ctx)

	log.LogNoVideoID(
		"Starting Vodflow API",
		"version", config.Version,
		"host", cli.HTTPAddress,
	)

	var err error
	go func() {
		err = server.ListenAndServe()
		cancel()
	}()

	<-ctx.Done()
	if err != nil {
		return err
	}

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func NewVodflowAPIRouter(coordinator *pipeline.Coordinator, videoStore pipeline.VideoStore, apiToken string) *httprouter.Router {
	router := httprouter.New()
	withLogging := middleware.LogRequest()
	withAuth := middleware.IsAuthorized

	vodflowHandlers := &handlers.VodflowHandlersCollection{Coordinator: coordinator, Store: videoStore}

	// Simple endpoint for healthchecks
	router.GET("/ok", withLogging(vodflowHandlers.Ok()))

	// Polling clients read pipeline progress here
	router.GET("/api/video/:id/status",
		withLogging(
			withAuth(
				apiToken,
				vodflowHandlers.GetVideoStatus(),
			),
		),
	)

	return router
}
