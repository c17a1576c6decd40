// Package main runs the payment orchestration core as a standalone
// daemon with the in-process reference workers and adapters wired in.
// Intents are read from a JSON file; production embedders replace this
// entry point with their own transport.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/remitstream/remitcore/config"
	"github.com/remitstream/remitcore/contracts"
	"github.com/remitstream/remitcore/core"
	"github.com/remitstream/remitcore/internal/adapters"
	"github.com/remitstream/remitcore/internal/compliance"
	"github.com/remitstream/remitcore/internal/observe"
	"github.com/remitstream/remitcore/internal/routing"
	"github.com/remitstream/remitcore/internal/workers"
)

func main() {
	configPath := flag.String("config", "", "path to core config JSON (defaults apply if empty)")
	intentPath := flag.String("intent", "", "path to a payment intent JSON to submit")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.NewLoader().LoadFromFile(*configPath)
		if err != nil {
			log.Fatal("loading config", zap.Error(err))
		}
		cfg = *loaded
	}

	sink := observe.NewPromSink(nil, log)
	c, err := core.New(cfg, core.Options{Logger: log, Sink: sink})
	if err != nil {
		log.Fatal("building core", zap.Error(err))
	}
	if err := registerWorkers(c, cfg, sink, log); err != nil {
		log.Fatal("registering workers", zap.Error(err))
	}

	if *intentPath != "" {
		if err := submitFromFile(c, *intentPath, log); err != nil {
			log.Error("submitting intent", zap.Error(err))
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("draining")
	if remaining := c.Drain(30 * time.Second); remaining > 0 {
		log.Warn("runs still live after drain", zap.Int("remaining", remaining))
	}
	log.Info("stopped")
}

// registerWorkers wires the in-process reference workers for every
// pipeline capability.
func registerWorkers(c *core.Core, cfg config.CoreConfig, sink contracts.Sink, log *zap.Logger) error {
	reg := c.Registry()

	payment := workers.NewPaymentWorker("payment-1", 16, log)
	liquidity := workers.NewLiquidityWorker("liquidity-1", 16, log)
	liquidity.SetPool("KES", decimal.NewFromInt(1_000_000))
	liquidity.SetPool("GHS", decimal.NewFromInt(500_000))
	liquidity.SetPool("USD", decimal.NewFromInt(1_000_000))

	fx := workers.NewExchangeRateWorker("fx-1", 16, 5*time.Minute, log)
	fx.SetRate(contracts.Corridor{From: "USD", To: "KES"}, decimal.NewFromFloat(129.45))
	fx.SetRate(contracts.Corridor{From: "USD", To: "GHS"}, decimal.NewFromFloat(15.60))
	fx.SetRate(contracts.Corridor{From: "EUR", To: "KES"}, decimal.NewFromFloat(140.10))

	book := routing.NewCorridorBook([]routing.ProviderEdge{
		{Provider: "mpesa", From: "USD", To: "KES", FlatFee: decimal.NewFromFloat(0.30),
			FeePct: decimal.NewFromFloat(0.004), Delivery: 15 * time.Minute, SuccessRate: 0.98, ComplianceScore: 0.95},
		{Provider: "airtel", From: "USD", To: "KES", FlatFee: decimal.NewFromFloat(0.20),
			FeePct: decimal.NewFromFloat(0.006), Delivery: 25 * time.Minute, SuccessRate: 0.95, ComplianceScore: 0.9},
		{Provider: "mtn", From: "USD", To: "GHS", FlatFee: decimal.NewFromFloat(0.25),
			FeePct: decimal.NewFromFloat(0.005), Delivery: 20 * time.Minute, SuccessRate: 0.96, ComplianceScore: 0.92},
		{Provider: "wise", From: "EUR", To: "USD", FlatFee: decimal.NewFromFloat(0.50),
			FeePct: decimal.NewFromFloat(0.003), Delivery: 60 * time.Minute, SuccessRate: 0.99, ComplianceScore: 0.97},
	})
	optimizer := routing.NewOptimizer(cfg.Optimizer, book, c.RouteCache(), log)
	router := routing.NewWorker("router-1", optimizer, 16)

	screener := compliance.NewScreener(cfg.Compliance, compliance.Watchlists{}, sink, log)
	screen := compliance.NewWorker("screener-1", screener, 16)

	mmo := workers.NewMMOWorker("mmo-mpesa-1", adapters.NewInMemoryMMO(adapters.MMOConfig{
		Provider:     "mpesa",
		Countries:    []contracts.CountryCode{"KE", "GH", "NG", "TZ"},
		Limits:       contracts.ProviderLimits{MinAmount: decimal.NewFromInt(1), MaxAmount: decimal.NewFromInt(150_000), PerMinute: 300, PerHour: 10_000},
		ConfirmAfter: 2 * time.Second,
		CacheTTL:     5 * time.Second,
	}, log), 8, log)

	settle := workers.NewSettlementWorker("settlement-1", adapters.NewInMemorySettlement(adapters.SettlementConfig{
		FlatFee: decimal.NewFromFloat(0.05),
	}, nil, log), "0xremitstream", 8, log)

	wired := []contracts.Worker{payment, liquidity, fx, router, screen, mmo, settle}
	for _, w := range wired {
		w := w
		reg.Register(contracts.WorkerDescriptor{
			Capability: w.Capability(),
			Version:    "1.0.0",
		}, func(map[string]any) (contracts.Worker, error) { return w, nil })
		if _, err := reg.Create(w.Capability(), nil); err != nil {
			return fmt.Errorf("creating %s worker: %w", w.Capability(), err)
		}
	}
	return nil
}

// submitFromFile runs one payment intent and logs the terminal result.
func submitFromFile(c *core.Core, path string, log *zap.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var intent contracts.PaymentIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return fmt.Errorf("parsing intent: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := c.Submit(ctx, &intent)
	if result != nil {
		log.Info("workflow result",
			zap.Bool("ok", result.OK),
			zap.String("status", string(result.Status)),
			zap.String("payment_id", result.PaymentID),
			zap.String("tx_hash", result.TransactionHash),
			zap.String("fees", result.FeesCharged.String()),
			zap.Duration("elapsed", result.Elapsed))
	}
	return err
}
