package http

import (
	"errors"
	"net/http"

	"github.com/biolingo/sync-engine/internal/identity"
	"github.com/biolingo/sync-engine/internal/infrastructure/auth"
	"github.com/biolingo/sync-engine/internal/progress"
	"github.com/labstack/echo/v4"
)

// ProgressHandler progress endpoints. Every route goes through the identity
// scope check first so a stale view from a previous user is never served
type ProgressHandler struct {
	store       *progress.Store
	coordinator *progress.Coordinator
	session     *identity.Session
	jwtUtil     *auth.JWTUtil
}

func NewProgressHandler(
	Store *progress.Store,
	Coordinator *progress.Coordinator,
	Session *identity.Session,
	JWTUtil *auth.JWTUtil,
) *ProgressHandler {
	handler := &ProgressHandler{Store, Coordinator, Session, JWTUtil}
	return handler
}

type syncStatusResponse struct {
	progress.SyncState
	Loading bool `json:"loading"`
}

type lessonResponse struct {
	Lesson   *progress.LessonView `json:"lesson"`
	CourseID string               `json:"course_id"`
}

// currentUserID identity from verified claims, empty for guest
func (ph *ProgressHandler) currentUserID(c echo.Context) string {
	claims := ph.jwtUtil.GetContextToken(c)
	if claims == nil {
		return ""
	}
	return claims.UID
}

// ensureScope sync the identity session and load the matching progress view
func (ph *ProgressHandler) ensureScope(c echo.Context) ([]*progress.CourseView, error) {
	uid := ph.currentUserID(c)
	ph.session.Set(uid)
	return ph.store.EnsureScope(c.Request().Context(), uid)
}

func (ph *ProgressHandler) HandleGetCourses(c echo.Context) (err error) {
	courses, err := ph.ensureScope(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, courses)
}

func (ph *ProgressHandler) HandleGetCourse(c echo.Context) (err error) {
	if _, err = ph.ensureScope(c); err != nil {
		return err
	}

	course, err := ph.store.GetCourseByID(c.Param("id"))
	if errors.Is(err, progress.ErrCourseNotFound) {
		return c.JSON(http.StatusNotFound, NewRESTStandardError(http.StatusNotFound, err.Error()))
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, course)
}

func (ph *ProgressHandler) HandleGetLesson(c echo.Context) (err error) {
	if _, err = ph.ensureScope(c); err != nil {
		return err
	}

	lesson, course, err := ph.store.GetLessonByID(c.Param("id"))
	if errors.Is(err, progress.ErrLessonNotFound) {
		return c.JSON(http.StatusNotFound, NewRESTStandardError(http.StatusNotFound, err.Error()))
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &lessonResponse{
		Lesson:   lesson,
		CourseID: course.ID,
	})
}

// HandleCompleteLesson record a completion. The local durable write happens
// before the response, remote delivery is asynchronous, hence 202
func (ph *ProgressHandler) HandleCompleteLesson(c echo.Context) (err error) {
	if _, err = ph.ensureScope(c); err != nil {
		return err
	}

	err = ph.store.CompleteLesson(c.Request().Context(), c.Param("id"))
	if errors.Is(err, progress.ErrLessonNotFound) {
		return c.JSON(http.StatusNotFound, NewRESTStandardError(http.StatusNotFound, err.Error()))
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, ph.syncStatus(c))
}

func (ph *ProgressHandler) HandleGetSyncState(c echo.Context) (err error) {
	return c.JSON(http.StatusOK, ph.syncStatus(c))
}

func (ph *ProgressHandler) syncStatus(c echo.Context) *syncStatusResponse {
	return &syncStatusResponse{
		SyncState: ph.coordinator.State(c.Request().Context()),
		Loading:   ph.store.IsLoading(),
	}
}
