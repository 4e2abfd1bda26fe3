// The worker runs the reconciliation sweep on a schedule: elapsed bookings
// become no-shows and repeat offenders are blacklisted. It shares the
// service wiring of the API but exposes only health probes and metrics.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/careslot/booking-api/internal/config"
	"github.com/careslot/booking-api/internal/notification"
	"github.com/careslot/booking-api/internal/repository/postgres"
	"github.com/careslot/booking-api/internal/service/booking"
	"github.com/careslot/booking-api/internal/service/reconciler"
	"github.com/careslot/booking-api/pkg/logger"
	messagingredis "github.com/careslot/booking-api/pkg/messaging/redis"
	"github.com/careslot/booking-api/pkg/metrics"
)

// envOverrides let deployments tune the worker without touching the shared
// config file.
type envOverrides struct {
	SweepIntervalMinutes int `envconfig:"SWEEP_INTERVAL_MINUTES"`
	HealthPort           int `envconfig:"HEALTH_PORT"`
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	var env envOverrides
	if err := envconfig.Process("worker", &env); err != nil {
		log.Fatal().Err(err).Msg("failed to read environment")
	}
	if env.SweepIntervalMinutes > 0 {
		cfg.Sweep.IntervalMinutes = env.SweepIntervalMinutes
	}
	if env.HealthPort > 0 {
		cfg.Sweep.HealthPort = env.HealthPort
	}

	appLogger := logger.NewLogger(nil)
	m := metrics.NewMetrics("careslot", "worker")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	base := postgres.NewBaseRepository(db)
	txRunner := &base
	appointmentRepo := postgres.NewAppointmentRepository(db)
	slotRepo := postgres.NewTimeSlotRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	doctorRepo := postgres.NewDoctorRepository(db)
	treatmentRepo := postgres.NewTreatmentRepository(db)
	scheduleRepo := postgres.NewScheduleRepository(db)

	notifiers := []notification.Notifier{notification.NewLogNotifier(appLogger)}
	if cfg.Redis.URL != "" {
		broker, err := messagingredis.NewRedisBroker(messagingredis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   3,
			RetryBackoff: 100 * time.Millisecond,
			PoolSize:     5,
			MinIdleConns: 1,
		}, &appLogger.ZL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer broker.Close()
		notifiers = append(notifiers, notification.NewEventNotifier(broker, cfg.Redis.Channel))
	}
	notifier := notification.NewMultiNotifier(notifiers...)

	lifecycle := booking.NewService(txRunner, appointmentRepo, slotRepo, patientRepo,
		doctorRepo, treatmentRepo, scheduleRepo, appLogger, m)
	sweeper := reconciler.NewService(txRunner, appointmentRepo, patientRepo, lifecycle, notifier, appLogger, m)

	startHealthServer(cfg.Sweep.HealthPort)

	scheduler := gocron.NewScheduler(time.UTC)
	_, err = scheduler.Every(cfg.Sweep.IntervalMinutes).Minutes().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		report, err := sweeper.Run(ctx, time.Now())
		if err != nil {
			log.Error().Err(err).Msg("sweep failed")
			return
		}
		log.Info().
			Int("no_shows", report.NoShows).
			Int("blacklisted", report.Blacklisted).
			Int("row_errors", len(report.Errors)).
			Msg("sweep completed")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule sweep")
	}

	scheduler.StartAsync()
	log.Info().Int("interval_minutes", cfg.Sweep.IntervalMinutes).Msg("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	scheduler.Stop()
}

func startHealthServer(port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			log.Error().Err(err).Msg("health server failed")
			os.Exit(1)
		}
	}()
}
