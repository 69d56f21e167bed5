// cmd/allocation-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/allocation/capacity"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/allocation/eligibility"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/allocation/scheduler"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/allocation/settings"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/camunda"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/config"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/database"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/metrics"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/notify"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/observability"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/qc"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/store"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/store/search"

	// Allocation workers
	ac "github.com/Awign-PM-Prod/securepath-pro-sub002/internal/workers/allocation/allocate-case"
	ba "github.com/Awign-PM-Prod/securepath-pro-sub002/internal/workers/allocation/batch-allocation"
	rc "github.com/Awign-PM-Prod/securepath-pro-sub002/internal/workers/allocation/reallocate-case"
	rd "github.com/Awign-PM-Prod/securepath-pro-sub002/internal/workers/allocation/record-decision"

	// QC workers
	rr "github.com/Awign-PM-Prod/securepath-pro-sub002/internal/workers/qc/record-review"
	sr "github.com/Awign-PM-Prod/securepath-pro-sub002/internal/workers/qc/submit-review"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting allocation manager...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New("allocation-manager")
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init Zeebe client with retry ---
	var camundaClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		camundaClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zeebeClient := camundaClient.GetClient()
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Stores ---
	caseStore := store.NewCaseStore(pg.DB)
	candidateStore := store.NewCandidateStore(pg.DB)
	allocationLog := store.NewAllocationLogStore(pg.DB)
	qcStore := store.NewQCStore(pg.DB)
	settingsStore := store.NewSettingsStore(pg.DB)

	auditIndexer := search.NewAuditIndexer(esClient.Client, cfg.Database.Elasticsearch.AuditIndex, log)
	logStore := search.NewMirroredLog(allocationLog, auditIndexer)

	// --- Allocation settings (seed on first boot, then DB is authoritative) ---
	settingsMgr := settings.NewManager(settingsStore, redisClient.Client, log)
	if err := settingsMgr.Load(ctx, cfg.Allocation); err != nil {
		zapLog.Fatal("allocation settings load failed", zap.Error(err))
	}
	zapLog.Info("Allocation settings loaded",
		zap.Int("version", settingsMgr.Get().Version),
	)

	// --- Notification boundary ---
	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Notifications.AWS.SNSTopicARN != "" {
		snsNotifier, err := notify.NewAWSNotifier(ctx, cfg.Notifications.AWS.Region, cfg.Notifications.AWS.SNSTopicARN, log)
		if err != nil {
			zapLog.Fatal("SNS notifier init failed", zap.Error(err))
		}
		notifier = snsNotifier
	}
	if cfg.Notifications.Email.Enabled && cfg.Notifications.Email.OpsEmail != "" {
		emailNotifier, err := notify.NewOpsEmailNotifier(ctx,
			cfg.Notifications.AWS.Region,
			cfg.Notifications.Email.FromEmail,
			cfg.Notifications.Email.OpsEmail,
			log,
		)
		if err != nil {
			zapLog.Fatal("ops email notifier init failed", zap.Error(err))
		}
		notifier = notify.Fanout{notifier, emailNotifier}
	}

	// --- Allocation engine ---
	ledger := capacity.NewLedger(redisClient.Client, candidateStore, log)
	transitionListener := capacity.NewListener(ledger, candidateStore, log)
	eligEngine := eligibility.NewEngine(candidateStore, ledger, log)
	sched := scheduler.New(caseStore, logStore, ledger, eligEngine, settingsMgr, candidateStore, notifier, log)

	// --- QC service ---
	qcService := qc.NewService(qcStore, caseStore, transitionListener, settingsMgr, notifier, log)

	// --- Register workers ---
	var workers []*camunda.CamundaWorker
	register := func(taskType string, handler camunda.JobHandler) {
		wcfg := config.GetWorkerConfig(cfg, taskType)
		if !config.IsWorkerEnabled(cfg, taskType) {
			zapLog.Info("worker disabled", zap.String("taskType", taskType))
			return
		}
		workers = append(workers, camunda.NewWorker(
			zeebeClient,
			taskType,
			wcfg.MaxJobsActive,
			config.GetDuration(wcfg.Timeout),
			handler,
			zapLog,
		))
	}

	register(ac.TaskType, ac.NewHandler(ac.LoadConfig(), sched, log))
	register(rd.TaskType, rd.NewHandler(rd.LoadConfig(), sched, log))
	register(rc.TaskType, rc.NewHandler(rc.LoadConfig(), caseStore, ledger, candidateStore, logStore, sched, settingsMgr, log))
	register(ba.TaskType, ba.NewHandler(ba.LoadConfig(), sched, log))
	register(sr.TaskType, sr.NewHandler(sr.LoadConfig(), qcService, log))
	register(rr.TaskType, rr.NewHandler(rr.LoadConfig(), qcService, log))
	zapLog.Info("All workers registered", zap.Int("count", len(workers)))

	// --- Daily capacity reset loop ---
	go runDailyReset(ctx, ledger, settingsMgr, zapLog)

	// --- Settings refresh + capacity snapshot tickers ---
	go func() {
		refresh := time.NewTicker(30 * time.Second)
		snapshot := time.NewTicker(5 * time.Minute)
		defer refresh.Stop()
		defer snapshot.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-refresh.C:
				if err := settingsMgr.Refresh(ctx); err != nil {
					zapLog.Warn("settings refresh failed", zap.Error(err))
				}
			case <-snapshot.C:
				snapshotCapacity(ctx, candidateStore, ledger)
				snapshotBacklog(ctx, caseStore)
			}
		}
	}()

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := pg.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/allocations/trail", func(w http.ResponseWriter, r *http.Request) {
			caseID := r.URL.Query().Get("caseId")
			if caseID == "" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "caseId is required"})
				return
			}
			entries, err := auditIndexer.SearchByCase(r.Context(), caseID, 100)
			if err != nil {
				w.WriteHeader(http.StatusBadGateway)
				json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(entries)
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	zapLog.Info("Shutdown signal received, stopping workers...")
	for _, w := range workers {
		w.Stop()
	}
	if err := camundaClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}
	zapLog.Info("Allocation manager stopped gracefully")
}

// runDailyReset sleeps until the configured reset time each day, then stamps
// and clears the capacity ledger. The SetNX stamp keeps replicas from
// resetting twice.
func runDailyReset(ctx context.Context, ledger *capacity.Ledger, settingsMgr *settings.Manager, log *zap.Logger) {
	for {
		resetTime := "00:00"
		if cfg := settingsMgr.Get(); cfg != nil {
			resetTime = cfg.DailyResetTime
		}
		offset, err := models.ParseDailyResetTime(resetTime)
		if err != nil {
			log.Warn("invalid daily reset time, defaulting to midnight", zap.String("value", resetTime), zap.Error(err))
			offset = 0
		}

		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(offset)
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		performed, err := ledger.ResetDaily(ctx, time.Now())
		if err != nil {
			log.Error("daily capacity reset failed", zap.Error(err))
			continue
		}
		if performed {
			log.Info("daily capacity reset performed")
		} else {
			log.Info("daily capacity reset already done by another replica")
		}
	}
}

// snapshotCapacity publishes per-candidate remaining capacity gauges.
func snapshotCapacity(ctx context.Context, candidates *store.CandidateStore, ledger *capacity.Ledger) {
	active, err := candidates.ListActive(ctx)
	if err != nil {
		return
	}
	for _, c := range active {
		avail, err := ledger.Available(ctx, c.ID)
		if err != nil {
			continue
		}
		metrics.CandidateCapacityAvailable.WithLabelValues(c.ID).Set(float64(avail))
	}
}

// snapshotBacklog publishes the count of cases awaiting manual assignment.
func snapshotBacklog(ctx context.Context, cases *store.CaseStore) {
	parked, err := cases.ListByStatus(ctx, models.CaseStatusPendingAllocation, 1000)
	if err != nil {
		return
	}
	metrics.PendingAllocationBacklog.Set(float64(len(parked)))
}
