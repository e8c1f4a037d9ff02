package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/datastore"
	"github.com/pitabwire/util"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wardenhq/warden/apps/warden/config"
	"github.com/wardenhq/warden/apps/warden/service/authz"
	"github.com/wardenhq/warden/internal/approval"
	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/emergency"
	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/guard"
	"github.com/wardenhq/warden/internal/scan"
)

func main() {
	ctx := context.Background()

	// Initialize configuration
	cfg, err := config.LoadWithOIDC[appconfig.WardenConfig](ctx)
	if err != nil {
		util.Log(ctx).With("err", err).Error("could not process configs")
		return
	}

	if cfg.Name() == "" {
		cfg.ServiceName = "fix_warden"
	}

	// Create service with Frame
	ctx, svc := frame.NewServiceWithContext(
		ctx,
		frame.WithConfig(&cfg),
		frame.WithDatastore(),
	)
	defer svc.Stop(ctx)
	log := svc.Log(ctx)

	// Get managers
	dbManager := svc.DatastoreManager()
	evtsMan := svc.EventsManager()

	dbPool := dbManager.GetPool(ctx, datastore.DefaultPoolName)

	// ==========================================================================
	// Setup Authorization Components
	// ==========================================================================

	var stopStore emergency.StopStateStore
	if cfg.StopStoreRedisURI != "" {
		opts, redisErr := redis.ParseURL(cfg.StopStoreRedisURI)
		if redisErr != nil {
			log.WithError(redisErr).Fatal("invalid stop store redis uri")
		}
		stopStore = emergency.NewRedisStopStore(redis.NewClient(opts))
	}

	controller := emergency.NewController(cfg.EmergencyLimits(), stopStore)
	breaker := emergency.NewBreaker(
		cfg.BreakerFailureThreshold,
		time.Duration(cfg.BreakerRecoverySeconds)*time.Second,
	)

	boundary, err := guard.NewBoundary(cfg.ProjectRoot)
	if err != nil {
		log.WithError(err).Fatal("invalid project root")
	}

	processPolicy := guard.NewProcessPolicy(nil, cfg.AllowedPrograms())
	networkGuard := guard.NewNetworkGuard(nil)

	// No reviewer collaborator is wired in this deployment; undecided
	// proposals fail closed.
	if cfg.InteractiveMode {
		log.Warn("interactive mode is configured but no reviewer is available, undecided proposals will be rejected")
	}
	engine := approval.NewEngine(cfg.ApprovalConfig(), scan.NewScanner(), nil, controller)
	decisions := audit.NewDecisionRepository(ctx, dbPool)
	applier := authz.NewFileApplier(processPolicy, nil)

	// ==========================================================================
	// Register Publishers
	// ==========================================================================

	batchResultPublisher := frame.WithRegisterPublisher(
		cfg.QueueBatchResultName,
		cfg.QueueBatchResultURI,
	)

	controlEventsPublisher := frame.WithRegisterPublisher(
		cfg.QueueControlEventsName,
		cfg.QueueControlEventsURI,
	)

	// ==========================================================================
	// Register Subscribers
	// ==========================================================================

	fixBatchSubscriber := frame.WithRegisterSubscriber(
		cfg.QueueFixBatchName,
		cfg.QueueFixBatchURI,
		authz.NewFixBatchHandler(
			&cfg, engine, scan.NewVeto(), boundary,
			controller, breaker, applier, decisions, evtsMan,
		),
	)

	// ==========================================================================
	// Setup Health and Control Endpoints
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"warden"}`))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"warden"}`))
	})

	mux.HandleFunc("/api/v1/emergency/status", func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Emergency emergency.Status    `json:"emergency"`
			Breaker   string              `json:"breaker"`
			Network   guard.NetworkStatus `json:"network"`
		}{
			Emergency: controller.Status(),
			Breaker:   string(breaker.State()),
			Network:   networkGuard.Status(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(status)
	})

	mux.HandleFunc("/api/v1/emergency/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		reason := r.URL.Query().Get("reason")
		if reason == "" {
			reason = "manual stop"
		}
		controller.Stop(r.Context(), reason)
		networkGuard.Activate()
		emitErr := evtsMan.Emit(r.Context(), events.EmergencyStopActivated.String(),
			&events.EmergencyStopActivatedPayload{
				Reason:      reason,
				ActivatedAt: time.Now(),
			})
		if emitErr != nil {
			util.Log(r.Context()).With("err", emitErr).Error("could not emit stop event")
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/api/v1/emergency/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		controller.Reset(r.Context())
		emitErr := evtsMan.Emit(r.Context(), events.EmergencyStopCleared.String(),
			&events.EmergencyStopClearedPayload{
				ClearedAt: time.Now(),
			})
		if emitErr != nil {
			util.Log(r.Context()).With("err", emitErr).Error("could not emit clear event")
		}
		w.WriteHeader(http.StatusAccepted)
	})

	// ==========================================================================
	// Initialize Service
	// ==========================================================================

	serviceOptions := []frame.Option{
		frame.WithHTTPHandler(mux),
		// Publishers
		batchResultPublisher,
		controlEventsPublisher,
		// Subscribers
		fixBatchSubscriber,
	}

	svc.Init(ctx, serviceOptions...)

	// ==========================================================================
	// Start the Service
	// ==========================================================================

	log.Info("Starting fix warden service...")
	err = svc.Run(ctx, "")
	if err != nil {
		log.WithError(err).Fatal("could not run server")
	}
}
