package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"spot-sniper/config"
	"spot-sniper/gateway"
	"spot-sniper/infrastructure/logger"
	"spot-sniper/infrastructure/monitor"
	"spot-sniper/internal/engine"
	"spot-sniper/order"
)

var phaseNames = []order.Phase{
	order.PhaseScheduled,
	order.PhaseBuying,
	order.PhaseAwaitingFill,
	order.PhaseWatching,
	order.PhaseSelling,
	order.PhaseDone,
}

// notifyingMetrics 在上报阶段指标的同时更新 systemd STATUS。
type notifyingMetrics struct {
	*monitor.Monitor
}

func (m notifyingMetrics) UpdatePhase(ordinal int) {
	m.Monitor.UpdatePhase(ordinal)
	if ordinal >= 0 && ordinal < len(phaseNames) {
		_, _ = daemon.SdNotify(false, "STATUS=phase "+string(phaseNames[ordinal]))
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "configs/sniper.yaml", "配置文件路径")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus metrics 监听地址，留空则关闭")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		return 2
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		return 2
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon := monitor.New(monitor.DefaultConfig())
	if *metricsAddr != "" {
		srv := mon.Serve(*metricsAddr, func(err error) {
			log.Error("metrics server failed", zap.Error(err))
		})
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		log.Info("metrics server listening", zap.String("addr", *metricsAddr))
	}

	client := gateway.NewBybitRESTClient(gateway.ClientOptions{
		BaseURL: cfg.Gateway.BaseURL,
		Creds: gateway.Credentials{
			APIKey:     cfg.Gateway.APIKey,
			Secret:     cfg.Gateway.APISecret,
			RecvWindow: cfg.Gateway.RecvWindow,
		},
		Timeout:   cfg.Gateway.Timeout(),
		RestRate:  cfg.Gateway.RestRate,
		RestBurst: cfg.Gateway.RestBurst,
		Observer:  mon,
	})

	var feed engine.PriceFeed
	if cfg.Execution.PriceFeed == config.PriceFeedWS {
		stream := gateway.NewBybitTickerStream(cfg.Gateway.WSURL)
		stream.OnConnect = func() {
			mon.RecordWSConnection()
			log.Info("ticker stream connected", zap.String("url", stream.URL))
		}
		stream.OnDisconnect = func(err error) {
			mon.RecordWSDisconnect()
			log.Warn("ticker stream disconnected", zap.Error(err))
		}
		feed = stream
	}

	eng, err := engine.New(engine.ConfigFromApp(cfg), engine.Components{
		Exchange: client,
		Feed:     feed,
		Logger:   log,
		Metrics:  notifyingMetrics{mon},
	})
	if err != nil {
		log.Error("初始化引擎失败", zap.Error(err))
		return 2
	}

	log.Info("sniper starting",
		zap.String("env", cfg.Env),
		zap.String("symbol", cfg.Trade.Symbol),
		zap.String("quoteAmount", cfg.Trade.QuoteAmount),
		zap.String("triggerTime", cfg.Trade.TriggerTime),
		zap.String("sellMultiplier", cfg.Trade.SellMultiplier),
		zap.String("priceFeed", cfg.Execution.PriceFeed))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	rep, err := eng.Run(ctx)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		log.Error("sniper stopped",
			zap.String("phase", string(eng.Phase())),
			zap.Int("waves", rep.Waves),
			zap.Error(err))
		return 1
	}

	log.Info("sniper finished",
		zap.String("buyPrice", rep.BuyPrice.String()),
		zap.String("buyQty", rep.BuyQty),
		zap.Int("waves", rep.Waves),
		zap.Int("accepted", rep.Accepted),
		zap.String("approxBuyPrice", rep.ApproxBuyPrice.String()),
		zap.String("target", rep.Target.String()),
		zap.String("sellPrice", rep.SellPrice.String()),
		zap.String("sellQty", rep.SellQty))
	return 0
}
