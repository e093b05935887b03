package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/handler"
	"github.com/noah-isme/sma-erp-api/internal/middleware"
	"github.com/noah-isme/sma-erp-api/internal/models"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth           *handler.AuthHandler
	Admission      *handler.AdmissionHandler
	Hostel         *handler.HostelHandler
	Fee            *handler.FeeHandler
	Receipt        *handler.ReceiptHandler
	JobApplication *handler.JobApplicationHandler
	Student        *handler.StudentHandler
	Teacher        *handler.TeacherHandler
	Classroom      *handler.ClassroomHandler
	User           *handler.UserHandler
	Dashboard      *handler.DashboardHandler
	Stream         *handler.StreamHandler
	Metrics        *handler.MetricsHandler
}

// Deps carries the cross-cutting collaborators of the route table.
type Deps struct {
	Sessions     middleware.TokenValidator
	Audit        middleware.AuditWriter
	LoginLimiter *middleware.RateLimiter
	Logger       *zap.Logger
}

var (
	staff      = []models.Role{models.RoleAdmin, models.RoleTeacher}
	money      = []models.Role{models.RoleAdmin, models.RoleFinance}
	everyone   = models.Roles()
	adminsOnly = []models.Role{models.RoleAdmin}
)

// Register mounts the API under prefix on r.
func Register(r gin.IRouter, prefix string, h *Handlers, deps Deps) {
	api := r.Group(prefix)
	api.Use(middleware.WithResponseMeta())

	auth := api.Group("/auth")
	if deps.LoginLimiter != nil {
		auth.POST("/login", deps.LoginLimiter.Middleware(), h.Auth.Login)
	} else {
		auth.POST("/login", h.Auth.Login)
	}

	// Public forms and signed downloads.
	api.POST("/admissions/applications", h.Admission.Submit)
	api.GET("/hostels/eligible", h.Hostel.Eligible)
	api.POST("/careers/applications", h.JobApplication.Submit)
	api.GET("/receipts/download/:token", h.Receipt.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.Sessions))

	secured.POST("/auth/logout", h.Auth.Logout)
	secured.GET("/auth/me", h.Auth.Me)
	secured.POST("/auth/change-password", h.Auth.ChangePassword)

	secured.GET("/dashboard", h.Dashboard.View)

	admissions := secured.Group("/admissions", middleware.RequireRoles(adminsOnly...))
	{
		admissions.GET("/applications", h.Admission.List)
		admissions.GET("/applications/:id", h.Admission.Get)
		admissions.POST("/applications/:id/approve", h.Admission.Approve)
		admissions.POST("/applications/:id/reject", h.Admission.Reject)
		admissions.POST("/applications/:id/hostel", h.Admission.AllocateHostel)
		admissions.GET("/stats", h.Admission.Stats)
		admissions.PUT("/stats", h.Admission.UpsertStat)
	}

	hostels := secured.Group("/hostels", middleware.RequireRoles(adminsOnly...))
	{
		hostels.GET("", h.Hostel.List)
		hostels.POST("", h.Hostel.Create)
		hostels.GET("/occupants", h.Hostel.Occupants)
		hostels.GET("/occupancy", h.Hostel.Occupancy)
		hostels.PUT("/:id", h.Hostel.Update)
		hostels.DELETE("/:id", h.Hostel.Delete)
		hostels.GET("/:id/rooms", h.Hostel.Rooms)
	}
	rooms := secured.Group("/rooms", middleware.RequireRoles(adminsOnly...))
	{
		rooms.POST("", h.Hostel.CreateRoom)
		rooms.PUT("/:id", h.Hostel.UpdateRoom)
		rooms.DELETE("/:id", h.Hostel.DeleteRoom)
		rooms.POST("/:id/occupants", h.Hostel.AssignOccupant)
		rooms.DELETE("/:id/occupants/:studentId", h.Hostel.RemoveOccupant)
	}

	fees := secured.Group("/fees/:kind")
	{
		readers := middleware.RequireRoles(models.RoleAdmin, models.RoleFinance, models.RoleStudent)
		fees.GET("", readers, h.Fee.List)
		fees.GET("/summary", middleware.RequireRoles(money...), h.Fee.Summary)
		fees.GET("/export", middleware.RequireRoles(money...), h.Fee.Export)
		fees.GET("/:id", readers, h.Fee.Get)
		fees.PATCH("/:id/amount", middleware.RequireRoles(money...), h.Fee.UpdateAmount)
		fees.PATCH("/:id/status", middleware.RequireRoles(money...), h.Fee.UpdateStatus)
		fees.POST("/:id/pay", readers, h.Fee.Pay)
		fees.POST("/:id/receipt", readers, h.Fee.RequestReceipt)
	}
	secured.GET("/receipts/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleFinance, models.RoleStudent), h.Receipt.Status)

	careers := secured.Group("/careers/applications", middleware.RequireRoles(adminsOnly...))
	{
		careers.GET("", h.JobApplication.List)
		careers.GET("/:id", h.JobApplication.Get)
		careers.POST("/:id/accept", h.JobApplication.Accept)
		careers.POST("/:id/reject", h.JobApplication.Reject)
	}

	students := secured.Group("/students")
	{
		students.GET("", middleware.RequireRoles(staff...), h.Student.List)
		students.POST("", middleware.RequireRoles(adminsOnly...), h.Student.Create)
		students.GET("/:id", middleware.RequireRolesOrSelf("id", staff...), h.Student.Get)
		students.PUT("/:id/avatar", middleware.RequireRolesOrSelf("id", adminsOnly...), h.Student.UpdateAvatar)
		students.POST("/:id/credentials",
			middleware.RequireRoles(staff...),
			middleware.Audit(deps.Audit, deps.Logger, models.AuditActionCredentialsIssued, models.CollectionStudents),
			h.Student.GenerateCredentials,
		)
	}

	teachers := secured.Group("/teachers", middleware.RequireRoles(staff...))
	{
		teachers.GET("", h.Teacher.List)
		teachers.GET("/:id", h.Teacher.Get)
		teachers.POST("/:id/credentials",
			middleware.Audit(deps.Audit, deps.Logger, models.AuditActionCredentialsIssued, models.CollectionTeachers),
			h.Teacher.GenerateCredentials,
		)
	}

	secured.GET("/notices", middleware.RequireRoles(everyone...), h.Classroom.ListNotices)
	secured.POST("/notices", middleware.RequireRoles(staff...), h.Classroom.PostNotice)
	secured.GET("/homework", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher, models.RoleStudent), h.Classroom.ListHomework)
	secured.POST("/homework", middleware.RequireRoles(staff...), h.Classroom.AssignHomework)
	secured.POST("/attendance", middleware.RequireRoles(staff...), h.Classroom.LogAttendance)
	secured.GET("/attendance/:studentId", middleware.RequireRolesOrSelf("studentId", staff...), h.Classroom.StudentAttendance)

	users := secured.Group("/users", middleware.RequireRoles(adminsOnly...))
	{
		users.GET("", h.User.List)
		users.GET("/:id", h.User.Get)
	}

	secured.GET("/system/metrics", middleware.RequireRoles(adminsOnly...), h.Metrics.Summary)

	secured.GET("/stream", h.Stream.Collections)
	secured.GET("/stream/:collection", h.Stream.Subscribe)
}

// RegisterProbes mounts health, readiness and Prometheus endpoints at the root.
func RegisterProbes(r gin.IRouter, metrics *handler.MetricsHandler, ready func() error) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if ready != nil {
			if err := ready(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if metrics != nil {
		r.GET("/metrics", metrics.Prometheus)
	}
}
