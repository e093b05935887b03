package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-erp-api/api/swagger"
	"github.com/noah-isme/sma-erp-api/internal/handler"
	"github.com/noah-isme/sma-erp-api/internal/middleware"
	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/internal/repository"
	"github.com/noah-isme/sma-erp-api/internal/router"
	"github.com/noah-isme/sma-erp-api/internal/service"
	"github.com/noah-isme/sma-erp-api/pkg/cache"
	"github.com/noah-isme/sma-erp-api/pkg/config"
	"github.com/noah-isme/sma-erp-api/pkg/database"
	"github.com/noah-isme/sma-erp-api/pkg/export"
	"github.com/noah-isme/sma-erp-api/pkg/jobs"
	"github.com/noah-isme/sma-erp-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-erp-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-erp-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-erp-api/pkg/storage"
	"github.com/noah-isme/sma-erp-api/pkg/validation"
)

// @title School ERP API
// @version 1.0.0
// @description Admissions, hostels, fee ledgers, careers and role dashboards for a school.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(cfg.Database)
	if err != nil {
		return err
	}
	if err := database.MigrateUp(migrator); err != nil {
		return err
	}

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	tuitionFee, err := parseAmount(cfg.Fees.TuitionAmount, "ADMISSION_TUITION_FEE")
	if err != nil {
		return err
	}
	hostelFee, err := parseAmount(cfg.Fees.HostelAmount, "HOSTEL_FEE_AMOUNT")
	if err != nil {
		return err
	}

	app, err := wire(ctx, cfg, logr, db, rdb, tuitionFee, hostelFee)
	if err != nil {
		return err
	}
	defer app.shutdown()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.metrics))

	router.RegisterProbes(r, app.handlers.Metrics, func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if rdb != nil {
			if err := rdb.Ping(pingCtx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	})
	router.Register(r, cfg.APIPrefix, app.handlers, app.deps)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type application struct {
	handlers *router.Handlers
	deps     router.Deps
	metrics  *service.MetricsService
	queue    *jobs.Queue
}

func (a *application) shutdown() {
	if a.queue != nil {
		a.queue.Stop()
	}
}

func wire(ctx context.Context, cfg *config.Config, logr *zap.Logger, db *sqlx.DB, rdb *redis.Client, tuitionFee, hostelFee decimal.Decimal) (*application, error) {
	validate := validation.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	admissionRepo := repository.NewAdmissionRepository(db)
	hostelRepo := repository.NewHostelRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	jobAppRepo := repository.NewJobApplicationRepository(db)
	noticeRepo := repository.NewNoticeRepository(db)
	homeworkRepo := repository.NewHomeworkRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)
	sessionRepo := repository.NewSessionRepository(rdb)
	idempotencyRepo := repository.NewIdempotencyRepository(rdb)

	var feed interface {
		service.ChangePublisher
		Subscribe(ctx context.Context, collection string) (*repository.Subscription, error)
	}
	if rdb != nil {
		feed = repository.NewRedisChangeFeed(rdb, logr)
	} else {
		logr.Warn("redis disabled, change feed and sessions are process-local")
		feed = repository.NewMemoryChangeFeed(logr)
	}
	notifier := service.NewChangeNotifier(feed, metrics, logr)
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(rdb, logr), metrics, cfg.Dashboard.CacheTTL, logr, rdb != nil)

	authSvc := service.NewAuthService(userRepo, sessionRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	if cfg.Seed.AdminUserID != "" {
		created, err := authSvc.EnsureAdmin(ctx, service.SeedAdmin{
			UserID:      cfg.Seed.AdminUserID,
			Password:    cfg.Seed.AdminPassword,
			DisplayName: cfg.Seed.AdminName,
		})
		if err != nil {
			return nil, fmt.Errorf("seed admin: %w", err)
		}
		if created {
			logr.Warn("seeded bootstrap admin account, change its password", zap.String("user_id", cfg.Seed.AdminUserID))
		}
	}

	admissionSvc := service.NewAdmissionService(admissionRepo, idempotencyRepo, userRepo, cacheSvc, notifier, metrics, validate, logr, service.AdmissionConfig{
		Section:        cfg.Admission.DefaultSection,
		Avatars:        cfg.Admission.Avatars,
		TuitionFee:     tuitionFee,
		HostelFee:      hostelFee,
		DueDays:        cfg.Fees.DueDays,
		IdempotencyTTL: cfg.Admission.IdempotencyTTL,
	})
	hostelSvc := service.NewHostelService(hostelRepo, userRepo, cacheSvc, notifier, metrics, validate, logr, service.HostelConfig{
		HostelFee: hostelFee,
		DueDays:   cfg.Fees.DueDays,
	})
	feeSvc := service.NewFeeService(feeRepo, userRepo, notifier, metrics, validate, logr)
	ledgerSvc := service.NewLedgerService(feeRepo)
	jobAppSvc := service.NewJobApplicationService(jobAppRepo, userRepo, cacheSvc, notifier, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, notifier, cacheSvc, validate, logr, cfg.Admission.DefaultSection)
	teacherSvc := service.NewTeacherService(teacherRepo, logr)
	userSvc := service.NewUserService(userRepo, logr)
	credentialSvc := service.NewCredentialService(userRepo, teacherRepo, studentRepo, notifier, logr)
	noticeSvc := service.NewNoticeService(noticeRepo, notifier, validate, logr)
	homeworkSvc := service.NewHomeworkService(homeworkRepo, studentRepo, notifier, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, notifier, validate, logr)
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Students:        studentRepo,
		Rosters:         studentRepo,
		Teachers:        teacherRepo,
		Admissions:      admissionRepo,
		JobApplications: jobAppRepo,
		Hostels:         hostelSvc,
		Trend:           admissionSvc,
		Fees:            feeRepo,
		Attendance:      attendanceRepo,
		Rooms:           hostelRepo,
		Homework:        homeworkRepo,
		Notices:         noticeRepo,
		Logger:          logr,
		Config:          service.DashboardServiceConfig{NoticeLimit: 5},
	})

	store, err := storage.NewLocalStorage(cfg.Receipts.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("init receipt storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Receipts.SignedURLSecret, cfg.Receipts.SignedURLTTL)
	exportSvc := service.NewExportService(feeRepo, store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Receipts.SignedURLTTL,
	}, logr, export.NewCSVExporter(), export.NewPDFExporter("School ERP"))

	worker := service.NewReceiptWorker(exportJobRepo, exportSvc, cfg.Receipts.WorkerRetries, logr)
	queue := jobs.NewQueue("receipts", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Receipts.WorkerConcurrency,
		MaxRetries: cfg.Receipts.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
		OnGiveUp: func(job jobs.Job, err error) {
			logr.Error("receipt job abandoned", zap.String("job_id", job.ID), zap.Error(err))
		},
	})
	queue.Start(ctx)
	receiptSvc := service.NewReceiptService(exportJobRepo, feeRepo, queue, exportSvc, logr, service.ReceiptServiceConfig{
		ResultTTL:       cfg.Receipts.SignedURLTTL,
		CleanupInterval: cfg.Receipts.CleanupInterval,
	})
	receiptSvc.RecoverPendingJobs(ctx)
	go receiptSvc.StartCleanup(ctx)

	streamSvc := service.NewStreamService(feed, metrics, logr)
	registerStreams(streamSvc, streamSources{
		students:   studentSvc,
		teachers:   teacherSvc,
		fees:       feeSvc,
		hostels:    hostelSvc,
		admissions: admissionSvc,
		jobs:       jobAppSvc,
		users:      userSvc,
		notices:    noticeSvc,
		homework:   homeworkSvc,
		attendance: attendanceSvc,
	})

	var loginLimiter *middleware.RateLimiter
	if cfg.RateLimit.LoginRate > 0 {
		var rateStore middleware.RateStore = middleware.NewMemoryRateStore()
		if rdb != nil {
			rateStore = cache.NewRedisRateStore(rdb)
		}
		loginLimiter = middleware.NewRateLimiter(rateStore, "login", cfg.RateLimit.LoginRate, cfg.RateLimit.LoginInterval, logr)
	}

	metricsHandler := handler.NewMetricsHandler(metrics)
	return &application{
		metrics: metrics,
		queue:   queue,
		deps: router.Deps{
			Sessions:     authSvc,
			Audit:        userRepo,
			LoginLimiter: loginLimiter,
			Logger:       logr,
		},
		handlers: &router.Handlers{
			Auth:           handler.NewAuthHandler(authSvc),
			Admission:      handler.NewAdmissionHandler(admissionSvc),
			Hostel:         handler.NewHostelHandler(hostelSvc),
			Fee:            handler.NewFeeHandler(feeSvc, ledgerSvc, exportSvc, receiptSvc),
			Receipt:        handler.NewReceiptHandler(receiptSvc),
			JobApplication: handler.NewJobApplicationHandler(jobAppSvc),
			Student:        handler.NewStudentHandler(studentSvc, credentialSvc),
			Teacher:        handler.NewTeacherHandler(teacherSvc, credentialSvc),
			Classroom:      handler.NewClassroomHandler(noticeSvc, homeworkSvc, attendanceSvc),
			User:           handler.NewUserHandler(userSvc),
			Dashboard:      handler.NewDashboardHandler(dashboardSvc),
			Stream:         handler.NewStreamHandler(streamSvc, cfg.CORS.AllowedOrigins, logr),
			Metrics:        metricsHandler,
		},
	}, nil
}

// ownStudentEvents keeps student sessions to events about themselves. Attendance events are
// keyed by student id.
func ownStudentEvents(s *models.Session, event models.ChangeEvent) bool {
	return s.Role != models.RoleStudent || s.OwnsStudent(event.ID)
}

type streamSources struct {
	students   *service.StudentService
	teachers   *service.TeacherService
	fees       *service.FeeService
	hostels    *service.HostelService
	admissions *service.AdmissionService
	jobs       *service.JobApplicationService
	users      *service.UserService
	notices    *service.NoticeService
	homework   *service.HomeworkService
	attendance *service.AttendanceService
}

func registerStreams(streams *service.StreamService, src streamSources) {
	admin := models.RoleAdmin
	staff := []models.Role{models.RoleAdmin, models.RoleTeacher}

	streams.Register(models.CollectionNotices, func(ctx context.Context, _ *models.Session) (interface{}, error) {
		return src.notices.List(ctx, 50)
	}, models.Roles()...)
	streams.Register(models.CollectionHomeworks, func(ctx context.Context, s *models.Session) (interface{}, error) {
		return src.homework.List(ctx, s, models.HomeworkFilter{})
	}, models.RoleAdmin, models.RoleTeacher, models.RoleStudent)
	streams.Register(models.CollectionStudents, func(ctx context.Context, _ *models.Session) (interface{}, error) {
		return src.students.All(ctx)
	}, staff...)
	streams.Register(models.CollectionTeachers, func(ctx context.Context, _ *models.Session) (interface{}, error) {
		return src.teachers.All(ctx)
	}, staff...)
	// Fee events carry only the fee id, so students read their fees through the REST routes.
	for _, kind := range []models.FeeKind{models.FeeKindTuition, models.FeeKindHostel} {
		kind := kind
		streams.Register(kind.Collection(), func(ctx context.Context, s *models.Session) (interface{}, error) {
			return src.fees.List(ctx, s, kind, models.FeeFilter{})
		}, models.RoleAdmin, models.RoleFinance)
	}
	streams.Register(models.CollectionHostels, func(ctx context.Context, _ *models.Session) (interface{}, error) {
		return src.hostels.ListHostels(ctx, "")
	}, admin)
	streams.Register(models.CollectionHostelRooms, func(ctx context.Context, _ *models.Session) (interface{}, error) {
		return src.hostels.ListRooms(ctx, "")
	}, admin)
	streams.Register(models.CollectionAdmissionApplications, func(ctx context.Context, _ *models.Session) (interface{}, error) {
		return src.admissions.List(ctx, "")
	}, admin)
	streams.Register(models.CollectionAdmissions, func(ctx context.Context, _ *models.Session) (interface{}, error) {
		stats, _, err := src.admissions.Stats(ctx)
		return stats, err
	}, admin)
	streams.Register(models.CollectionJobApplications, func(ctx context.Context, _ *models.Session) (interface{}, error) {
		return src.jobs.List(ctx, "")
	}, admin)
	streams.Register(models.CollectionUsers, func(ctx context.Context, _ *models.Session) (interface{}, error) {
		return src.users.List(ctx, "")
	}, admin)
	streams.RegisterScoped(models.CollectionStudentAttendance, func(ctx context.Context, s *models.Session) (interface{}, error) {
		if s.Role != models.RoleStudent {
			return src.attendance.All(ctx, s)
		}
		if s.StudentID == nil {
			return nil, nil
		}
		return src.attendance.Get(ctx, s, *s.StudentID)
	}, ownStudentEvents, models.RoleAdmin, models.RoleTeacher, models.RoleStudent)
}

func parseAmount(raw, key string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return amount, nil
}
