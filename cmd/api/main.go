package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/careslot/booking-api/internal/config"
	"github.com/careslot/booking-api/internal/handler"
	adminHandler "github.com/careslot/booking-api/internal/handler/admin"
	appointmentHandler "github.com/careslot/booking-api/internal/handler/appointment"
	authHandler "github.com/careslot/booking-api/internal/handler/auth"
	doctorHandler "github.com/careslot/booking-api/internal/handler/doctor"
	patientHandler "github.com/careslot/booking-api/internal/handler/patient"
	scheduleHandler "github.com/careslot/booking-api/internal/handler/schedule"
	treatmentHandler "github.com/careslot/booking-api/internal/handler/treatment"
	"github.com/careslot/booking-api/internal/middleware"
	"github.com/careslot/booking-api/internal/notification"
	"github.com/careslot/booking-api/internal/repository/postgres"
	"github.com/careslot/booking-api/internal/router"
	authService "github.com/careslot/booking-api/internal/service/auth"
	"github.com/careslot/booking-api/internal/service/booking"
	"github.com/careslot/booking-api/internal/service/cascade"
	"github.com/careslot/booking-api/internal/service/challenge"
	doctorService "github.com/careslot/booking-api/internal/service/doctor"
	patientService "github.com/careslot/booking-api/internal/service/patient"
	"github.com/careslot/booking-api/internal/service/reconciler"
	scheduleService "github.com/careslot/booking-api/internal/service/schedule"
	treatmentService "github.com/careslot/booking-api/internal/service/treatment"
	pkgauth "github.com/careslot/booking-api/pkg/auth"
	"github.com/careslot/booking-api/pkg/logger"
	messagingredis "github.com/careslot/booking-api/pkg/messaging/redis"
	"github.com/careslot/booking-api/pkg/metrics"
	"github.com/careslot/booking-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)
	m := metrics.NewMetrics("careslot", "booking")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Repositories.
	base := postgres.NewBaseRepository(db)
	txRunner := &base
	appointmentRepo := postgres.NewAppointmentRepository(db)
	slotRepo := postgres.NewTimeSlotRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	doctorRepo := postgres.NewDoctorRepository(db)
	treatmentRepo := postgres.NewTreatmentRepository(db)
	scheduleRepo := postgres.NewScheduleRepository(db)
	challengeRepo := postgres.NewChallengeRepository(db)
	userRepo := postgres.NewUserRepository(db)

	// Outbound notifications: always the log, plus the broker and SMTP
	// when configured.
	notifiers := []notification.Notifier{notification.NewLogNotifier(appLogger)}
	if cfg.Redis.URL != "" {
		broker, err := messagingredis.NewRedisBroker(messagingredis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   3,
			RetryBackoff: 100 * time.Millisecond,
			PoolSize:     10,
			MinIdleConns: 2,
		}, &appLogger.ZL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer broker.Close()
		notifiers = append(notifiers, notification.NewEventNotifier(broker, cfg.Redis.Channel))
	}
	if cfg.Email.Host != "" {
		notifiers = append(notifiers, notification.NewEmailNotifier(notification.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		}))
	}
	notifier := notification.NewMultiNotifier(notifiers...)

	// Services.
	lifecycle := booking.NewService(txRunner, appointmentRepo, slotRepo, patientRepo,
		doctorRepo, treatmentRepo, scheduleRepo, appLogger, m)
	canceller := cascade.NewService(appointmentRepo, patientRepo, lifecycle, notifier, appLogger, m)
	sweeper := reconciler.NewService(txRunner, appointmentRepo, patientRepo, lifecycle, notifier, appLogger, m)
	doctorSvc := doctorService.NewService(doctorRepo, canceller, appLogger)
	treatmentSvc := treatmentService.NewService(treatmentRepo, canceller, lifecycle, appLogger)
	scheduleSvc := scheduleService.NewService(scheduleRepo, doctorRepo, appLogger)

	otpThrottle := challenge.NewService(challengeRepo, challenge.OTPPolicy(), appLogger, m)
	patientSvc := patientService.NewService(patientRepo, otpThrottle, notifier, appLogger)

	loginThrottle := challenge.NewService(challengeRepo, challenge.LoginPolicy(), appLogger, m)
	jwtSvc := pkgauth.NewJWTService(pkgauth.Config{
		Secret:             cfg.JWT.Secret,
		RefreshSecret:      cfg.JWT.RefreshSecret,
		ExpiryHours:        cfg.JWT.ExpiryHours,
		RefreshExpiryHours: cfg.JWT.RefreshExpiryHours,
	})
	hasher := security.NewBcryptHasher(12)
	authSvc := authService.NewService(userRepo, loginThrottle, jwtSvc, hasher, appLogger)

	// HTTP surface.
	handler.RegisterValidations()
	authMiddleware := middleware.NewAuthMiddleware(authSvc)
	r := router.NewRouter(
		authMiddleware,
		authHandler.NewHandler(authSvc),
		appointmentHandler.NewHandler(lifecycle),
		doctorHandler.NewHandler(doctorSvc),
		treatmentHandler.NewHandler(treatmentSvc),
		scheduleHandler.NewHandler(scheduleSvc),
		patientHandler.NewHandler(patientSvc),
		adminHandler.NewHandler(sweeper),
		handler.NewHandler(db),
		router.Config{
			RateLimit: middleware.RateLimiterConfig{
				RPS:   cfg.RateLimit.RPS,
				Burst: cfg.RateLimit.Burst,
			},
			CORSConfig: middleware.DefaultCORSConfig(),
			Timeout:    time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}
