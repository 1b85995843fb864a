package http

import (
	infra "github.com/biolingo/sync-engine/internal/infrastructure"
	"github.com/labstack/echo/v4"
)

func v1Endpoint(
	websocket *infra.Websocket,
	ProgressHandler *ProgressHandler,
	tokenMiddleware echo.MiddlewareFunc,
	refreshMiddleware echo.MiddlewareFunc,
	requestIDMiddleware echo.MiddlewareFunc,
	traceLoggerMiddleware echo.MiddlewareFunc,
) *endpoint {
	return &endpoint{
		apiVersion:  "api/v1",
		middlewares: []echo.MiddlewareFunc{requestIDMiddleware, traceLoggerMiddleware},
		groups: []*apiGroup{
			{
				prefix:      "/progress",
				middlewares: []echo.MiddlewareFunc{tokenMiddleware, refreshMiddleware},
				routes: []*route{
					{"GET", "/courses", ProgressHandler.HandleGetCourses, nil},
					{"GET", "/course/:id", ProgressHandler.HandleGetCourse, nil},
					{"GET", "/lesson/:id", ProgressHandler.HandleGetLesson, nil},
					{"POST", "/lesson/:id/complete", ProgressHandler.HandleCompleteLesson, nil},
					{"GET", "/sync", ProgressHandler.HandleGetSyncState, nil},
				},
			},
			{
				prefix: "/ws",
				routes: []*route{
					{"GET", "/sync", websocket.WithHeartbeat(ProgressHandler.HandleSyncStream), nil},
				},
			},
		},
	}
}
