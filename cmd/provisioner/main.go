package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/careops/staff-provisioning/internal/coordinator"
	setuplogsqlite "github.com/careops/staff-provisioning/internal/coordinator/setuplog/sqlite"
	"github.com/careops/staff-provisioning/internal/httpx"
	"github.com/careops/staff-provisioning/internal/payroll"
	"github.com/careops/staff-provisioning/internal/payroll/resthttp"
	"github.com/careops/staff-provisioning/internal/pkg/cache"
	"github.com/careops/staff-provisioning/internal/pkg/telemetry"
	"github.com/careops/staff-provisioning/internal/staff"
	"github.com/careops/staff-provisioning/internal/trigger"
)

const serviceName = "staff-provisioning"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry.InitLogger(serviceName)

	shutdownTracer, err := telemetry.SetupTracer(ctx, serviceName)
	if err != nil {
		log.Fatalf("tracer setup failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	store, err := setuplogsqlite.Open(getEnv("SETUPLOG_DB_PATH", "./data/setuplog.db"))
	if err != nil {
		log.Fatalf("setup log store failed: %v", err)
	}
	defer store.Close()

	var statsCache cache.Cache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		statsCache = cache.NewRedisCache(addr, serviceName)
	}

	payrollClient := buildPayrollClient()
	directory := buildStaffDirectory()

	pipeline := coordinator.NewPipeline(store, directory, coordinator.DefaultSteps(payrollClient))
	trig := trigger.New(pipeline, store, 64)
	go trig.Run(ctx)

	handler := httpx.NewHandler(store, trig, statsCache)
	router := httpx.NewRouter(handler)

	addr := getEnv("HTTP_ADDR", ":8080")
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("staff provisioning service running", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server failed: %v", err)
	}
}

// buildPayrollClient uses the REST adapter when a provider URL is
// configured, otherwise the in-memory fake for local development.
func buildPayrollClient() payroll.Client {
	if url := os.Getenv("PAYROLL_API_URL"); url != "" {
		return resthttp.New(url, os.Getenv("PAYROLL_API_KEY"))
	}
	slog.Warn("PAYROLL_API_URL not set, using in-memory payroll provider")
	return payroll.NewFake()
}

// buildStaffDirectory returns the in-memory directory, seeded with a demo
// member so a local staff-created event can complete end to end.
func buildStaffDirectory() staff.Directory {
	dir := staff.NewMemoryDirectory()
	dir.Add(&staff.Member{
		ID:             "staff-demo-1",
		TenantID:       "tenant-demo",
		FirstName:      "Naledi",
		LastName:       "Mokoena",
		Email:          "naledi@example.org",
		IDNumber:       "9001014800084",
		TaxNumber:      "1234567890",
		Position:       staff.PositionTeacher,
		EmploymentType: staff.FullTime,
		StartDate:      time.Now().UTC(),
		MonthlySalary:  18500,
	})
	return dir
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
