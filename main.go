package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zhima-Mochi/comanda/internal/application"
	appOrder "github.com/Zhima-Mochi/comanda/internal/application/order"
	appReceipt "github.com/Zhima-Mochi/comanda/internal/application/receipt"
	appTable "github.com/Zhima-Mochi/comanda/internal/application/table"
	"github.com/Zhima-Mochi/comanda/internal/config"
	domcatalog "github.com/Zhima-Mochi/comanda/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/comanda/internal/domain/order"
	domreceipt "github.com/Zhima-Mochi/comanda/internal/domain/receipt"
	domtable "github.com/Zhima-Mochi/comanda/internal/domain/table"
	infraBroadcast "github.com/Zhima-Mochi/comanda/internal/infrastructure/broadcast"
	"github.com/Zhima-Mochi/comanda/internal/infrastructure/id"
	"github.com/Zhima-Mochi/comanda/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/comanda/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/comanda/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/comanda/internal/infrastructure/observability/telemetry"
	"github.com/Zhima-Mochi/comanda/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/comanda/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/comanda/internal/observability"
	"github.com/Zhima-Mochi/comanda/internal/pkg/keylock"
	httppresentation "github.com/Zhima-Mochi/comanda/internal/presentation/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := zaplogger.New(
		observability.F("service", cfg.ServiceName),
		observability.F("env", cfg.Env),
	)

	tel := buildTelemetry(cfg, logger)

	var (
		orders   domorder.Repository
		tables   domtable.Repository
		receipts domreceipt.Repository
		catalog  domcatalog.Catalog
		txRunner application.Atomic
	)
	if cfg.DatabaseURL != "" {
		db, dbErr := postgres.New(ctx, cfg.DatabaseURL, logger)
		if dbErr != nil {
			logger.Error("db_setup_failed", observability.F("error", dbErr))
			os.Exit(1)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			logger.Error("db_setup_failed", observability.F("error", err))
			os.Exit(1)
		}
		if err := db.SeedTables(ctx, cfg.TableNumbers()...); err != nil {
			logger.Error("db_setup_failed", observability.F("error", err))
			os.Exit(1)
		}
		orders = postgres.NewOrderRepository(db)
		tables = postgres.NewTableRepository(db)
		receipts = postgres.NewReceiptRepository(db)
		catalog = postgres.NewCatalog(db)
		txRunner = db
	} else {
		logger.Info("using_in_memory_storage")
		orders = memory.NewOrderRepository()
		tables = memory.NewTableRepository(cfg.TableNumbers()...)
		receipts = memory.NewReceiptRepository()
		catalog = memory.NewCatalog(demoPlates()...)
	}

	bus := infraBroadcast.NewBus(logger, tel)
	bus.Start(ctx)
	defer bus.Stop(context.Background())

	if cfg.AMQPURL != "" {
		relay, relayErr := infraBroadcast.NewAMQPRelay(cfg.AMQPURL, logger)
		if relayErr != nil {
			logger.Error("amqp_setup_failed", observability.F("error", relayErr))
			os.Exit(1)
		}
		defer relay.Close()
		relay.Attach(bus)
	}

	locks := keylock.New()
	idGen := id.NewUUIDGenerator()

	orderSvc := appOrder.NewService(orders, tables, catalog, locks, idGen, bus, txRunner, tel)
	receiptSvc := appReceipt.NewService(receipts, orders, tables, locks, idGen, bus, txRunner, tel)
	tableSvc := appTable.NewService(tables, locks, bus, tel)

	handler := httppresentation.NewHandler(orderSvc, receiptSvc, tableSvc, catalog, logger, tel)

	mux := http.NewServeMux()
	mux.Handle("/", handler.Router())
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http_server_listening", observability.F("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_failed", observability.F("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", observability.F("error", err))
	}
}

// buildTelemetry registers every metric the service emits and binds them,
// the tracer, and the logger behind the Telemetry port.
func buildTelemetry(cfg *config.Config, logger observability.Logger) observability.Telemetry {
	reg := prometrics.New(cfg.ServiceName, "")
	durationBuckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

	counters := map[string]observability.Counter{
		observability.MUsecaseRequests: reg.Counter(
			observability.MUsecaseRequests, "Use case invocations by outcome", "use_case", "outcome"),
		observability.MHTTPRequests: reg.Counter(
			observability.MHTTPRequests, "HTTP requests by route and status", "method", "route", "status"),
		observability.MBroadcastPublished: reg.Counter(
			observability.MBroadcastPublished, "Display update events enqueued", "event"),
		observability.MBroadcastFailures: reg.Counter(
			observability.MBroadcastFailures, "Display update deliveries that failed", "event"),
		observability.MTableSideEffectFails: reg.Counter(
			observability.MTableSideEffectFails, "Table status side effects that failed", "table"),
	}
	histograms := map[string]observability.Histogram{
		observability.MUsecaseDuration: reg.Histogram(
			observability.MUsecaseDuration, "Use case latency", durationBuckets, "use_case", "outcome"),
		observability.MHTTPRequestDuration: reg.Histogram(
			observability.MHTTPRequestDuration, "HTTP request latency", durationBuckets, "method", "route", "status"),
	}

	return telemetry.New(oteltrace.New(cfg.ServiceName), logger, counters, histograms)
}

// demoPlates seeds the in-memory catalog so the service is usable without a
// database, mirroring a small Peruvian menu.
func demoPlates() []*domcatalog.Plate {
	price := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	return []*domcatalog.Plate{
		{ID: "ceviche-clasico", Name: "Ceviche Clásico", Description: "Catch of the day, leche de tigre", Price: price("32.00"), Active: true},
		{ID: "lomo-saltado", Name: "Lomo Saltado", Description: "Beef stir fry with fries and rice", Price: price("28.50"), Active: true},
		{ID: "aji-de-gallina", Name: "Ají de Gallina", Description: "Creamy chicken, yellow pepper sauce", Price: price("24.00"), Active: true},
		{ID: "causa-limena", Name: "Causa Limeña", Description: "Layered potato terrine", Price: price("18.00"), Active: true},
		{ID: "chicha-morada", Name: "Chicha Morada", Description: "Purple corn drink, 500ml", Price: price("8.00"), Active: true},
		{ID: "suspiro-limeno", Name: "Suspiro Limeño", Description: "Caramel custard dessert", Price: price("12.00"), Active: false},
	}
}
