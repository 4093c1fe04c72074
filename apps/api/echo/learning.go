package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/learning"
	"github.com/loopverse/campus/core/session"
	"github.com/loopverse/campus/core/user"
	pushsvc "github.com/loopverse/campus/services/push"
)

type learningApi struct {
	svc      *learning.Service
	usrSvc   *user.Service
	hub      *pushsvc.Hub
	logger   core.Logger
	validate *validator.Validate
}

func registerLearningAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps, _ *jwtAuth) {
	api := learningApi{svc: deps.LearningSvc, usrSvc: deps.UserSvc, hub: deps.Hub, logger: deps.Logger, validate: deps.Validate}
	staff := roleMiddleware(user.RoleTeacher, user.RoleAdmin)

	cg := g.Group("/courses", jwt)
	cg.GET("", api.queryCourses, roleMiddleware(user.AllRoles...))
	cg.POST("", api.createCourse, staff)
	cg.GET("/:id", api.retrieveCourse, roleMiddleware(user.AllRoles...))
	cg.PATCH("/:id", api.updateCourseStatus, staff)

	eg := g.Group("/enrollments", jwt, roleMiddleware(user.RoleStudent))
	eg.GET("", api.queryEnrollments)
	eg.POST("", api.enroll)

	vg := g.Group("/events", jwt)
	vg.GET("", api.queryEvents, roleMiddleware(user.AllRoles...))
	vg.POST("", api.createEvent, adminMiddleware())
	vg.PATCH("/:id/cancel", api.cancelEvent, adminMiddleware())
	vg.DELETE("/:id", api.deleteEvent, adminMiddleware())

	ag := g.Group("/announcements", jwt)
	ag.GET("", api.queryAnnouncements, roleMiddleware(user.AllRoles...))
	ag.POST("", api.createAnnouncement, staff)
	ag.PATCH("/:id/toggle", api.toggleAnnouncement, staff, api.announcementOwnerMiddleware())
	ag.DELETE("/:id", api.deleteAnnouncement, staff, api.announcementOwnerMiddleware())
}

// Courses

func (api *learningApi) createCourse(ctx echo.Context) error {
	var data learning.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	crs, err := api.svc.CreateCourse(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

// queryCourses lists what the caller may see: students the approved catalog, teachers their own courses.
func (api *learningApi) queryCourses(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var filter learning.CourseFilter
	switch claims.Role {
	case user.RoleStudent:
		filter.Statuses = []learning.CourseStatus{learning.CourseApproved}
	case user.RoleTeacher:
		filter.InstructorID = claims.Subject
	}
	if status := ctx.QueryParam("status"); status != "" && claims.Role != user.RoleStudent {
		filter.Statuses = []learning.CourseStatus{learning.CourseStatus(core.CleanString(status, true /* lower */))}
	}

	courses, err := api.svc.QueryCourses(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *learningApi) retrieveCourse(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	crs, err := api.svc.GetCourse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, learning.ErrCourseNotFound) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding course by ID")
	}
	if !canSeeCourse(claims, crs) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, crs)
}

func canSeeCourse(claims Claims, crs learning.Course) bool {
	return claims.IsAdmin || crs.Status == learning.CourseApproved || crs.InstructorID == claims.Subject
}

// updateCourseStatus lets instructors publish or shelve their own courses. Only admins review and approve.
func (api *learningApi) updateCourseStatus(ctx echo.Context) error {
	var data learning.CourseStatusUpdate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CourseStatusUpdate")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	reqCtx := ctx.Request().Context()
	crs, err := api.svc.GetCourse(reqCtx, ctx.Param("id"))
	if err != nil {
		if errors.Is(err, learning.ErrCourseNotFound) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding course by ID")
	}
	if !claims.IsAdmin {
		if crs.InstructorID != claims.Subject {
			return errHttpNotFound
		}
		if data.Status != learning.CourseDraft && data.Status != learning.CoursePublished {
			return errHttpForbidden
		}
	}

	crs, err = api.svc.SetCourseStatus(reqCtx, crs.ID, data.Status)
	if err != nil {
		return errors.Wrap(err, "updating course status")
	}
	return ctx.JSON(http.StatusOK, crs)
}

// Enrollments

func (api *learningApi) enroll(ctx echo.Context) error {
	var data learning.NewEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	enr, err := api.svc.Enroll(ctx.Request().Context(), claims.Subject, data.CourseID)
	if err != nil {
		switch {
		case errors.Is(err, learning.ErrCourseNotFound), errors.Is(err, learning.ErrCourseNotOpen), errors.Is(err, learning.ErrAlreadyEnrolled):
			return core.NewValidationError(err, core.FieldError{Field: "course_id", Error: err.Error()})
		}
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *learningApi) queryEnrollments(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	enrs, err := api.svc.Enrollments(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	return ctx.JSON(http.StatusOK, enrs)
}

// Events

func (api *learningApi) createEvent(ctx echo.Context) error {
	var data learning.NewEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	evt, err := api.svc.CreateEvent(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, evt)
}

// queryEvents hides cancelled events from everyone but admins.
func (api *learningApi) queryEvents(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	var filter learning.EventFilter
	if !claims.IsAdmin {
		filter.Statuses = []learning.EventStatus{learning.EventActive}
	}

	events, err := api.svc.QueryEvents(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *learningApi) cancelEvent(ctx echo.Context) error {
	evt, err := api.svc.CancelEvent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, learning.ErrEventNotFound) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "cancelling event")
	}
	return ctx.JSON(http.StatusOK, evt)
}

func (api *learningApi) deleteEvent(ctx echo.Context) error {
	if err := api.svc.DeleteEvent(ctx.Request().Context(), ctx.Param("id")); err != nil {
		if errors.Is(err, learning.ErrEventNotFound) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "deleting event")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Announcements

func (api *learningApi) createAnnouncement(ctx echo.Context) error {
	var data learning.NewAnnouncement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAnnouncement")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	reqCtx := ctx.Request().Context()
	ann, err := api.svc.CreateAnnouncement(reqCtx, claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating announcement")
	}
	api.notifyStudents(ctx, ann)
	return ctx.JSON(http.StatusCreated, ann)
}

// notifyStudents pushes ann to connected students. Failures are logged only.
func (api *learningApi) notifyStudents(ctx echo.Context, ann learning.Announcement) {
	reqCtx := ctx.Request().Context()
	ids, err := api.usrSvc.UsersWithRoles(reqCtx, user.RoleStudent)
	if err != nil {
		api.logger.Warn("finding students to notify", err, map[string]interface{}{"announcement_id": ann.ID})
		return
	}
	if len(ids) == 0 {
		return
	}
	_, err = api.hub.Send(reqCtx, ids, session.Notification{
		Title: ann.Title,
		Body:  ann.Content,
		Data:  map[string]string{"type": "announcement", "id": ann.ID, "priority": ann.Priority},
	})
	if err != nil {
		api.logger.Warn("pushing announcement", err, map[string]interface{}{"announcement_id": ann.ID})
	}
}

// queryAnnouncements gives students the active announcements and teachers their own.
func (api *learningApi) queryAnnouncements(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	var filter learning.AnnouncementFilter
	switch claims.Role {
	case user.RoleStudent:
		filter.ActiveOnly = true
	case user.RoleTeacher:
		filter.CreatedBy = claims.Subject
	}

	anns, err := api.svc.QueryAnnouncements(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying announcements")
	}
	return ctx.JSON(http.StatusOK, anns)
}

func (api *learningApi) toggleAnnouncement(ctx echo.Context) error {
	ann, err := api.svc.ToggleAnnouncement(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, learning.ErrAnnouncementNotFound) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "toggling announcement")
	}
	return ctx.JSON(http.StatusOK, ann)
}

func (api *learningApi) deleteAnnouncement(ctx echo.Context) error {
	if err := api.svc.DeleteAnnouncement(ctx.Request().Context(), ctx.Param("id")); err != nil {
		if errors.Is(err, learning.ErrAnnouncementNotFound) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "deleting announcement")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// announcementOwnerMiddleware hides other authors' announcements from non-admins.
func (api *learningApi) announcementOwnerMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin {
				return next(ctx)
			}
			ann, err := api.svc.GetAnnouncement(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Is(err, learning.ErrAnnouncementNotFound) {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding announcement by ID")
			}
			if ann.CreatedBy != claims.Subject {
				return errHttpNotFound
			}
			return next(ctx)
		}
	}
}
