package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lightbot/golighter/internal/domain"
	"github.com/lightbot/golighter/internal/engine"
	"github.com/lightbot/golighter/internal/gateway/lighter"
	"github.com/lightbot/golighter/internal/gateway/paper"
	"github.com/lightbot/golighter/internal/lifecycle"
	"github.com/lightbot/golighter/internal/ports"
	"github.com/lightbot/golighter/internal/tracker"
	"github.com/lightbot/golighter/internal/ws"
	"github.com/lightbot/golighter/pkg/config"
	"github.com/lightbot/golighter/pkg/logger"
	"github.com/lightbot/golighter/pkg/secretstore"
	"github.com/lightbot/golighter/pkg/shutdown"
	"github.com/lightbot/golighter/pkg/sigchan"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	symbol := flag.String("symbol", "", "交易标的，覆盖配置文件")
	dryRun := flag.Bool("dry-run", false, "纸交易模式：不发真实订单")
	maxOrders := flag.Int("max-orders", 0, "活跃订单上限，覆盖配置文件")
	orderNotional := flag.Float64("order-amount", 0, "单笔订单名义金额（USD），覆盖配置文件")
	flag.Parse()

	// .env 不存在不是错误
	_ = godotenv.Load()

	if *configPath != "" {
		config.SetConfigPath(*configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 命令行参数覆盖配置文件
	if *symbol != "" {
		cfg.Symbol = *symbol
	}
	if *dryRun {
		cfg.DryRun = true
	}
	if *maxOrders > 0 {
		cfg.Grid.MaxActiveOrders = *maxOrders
	}
	if *orderNotional > 0 {
		cfg.Grid.OrderNotional = *orderNotional
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	logrus.Infof("🚀 网格机器人启动 symbol=%s dry_run=%v levels=%d/侧 max_orders=%d",
		cfg.Symbol, cfg.DryRun, cfg.Grid.LevelsPerSide, cfg.Grid.MaxActiveOrders)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway, err := buildGateway(cfg)
	if err != nil {
		logrus.Errorf("❌ 初始化网关失败: %v", err)
		os.Exit(1)
	}

	// 拉取市场约束，失败时退回保守默认值
	inst := fetchInstrument(ctx, gateway, cfg)

	// 设置杠杆（幂等操作，每次启动设置一次）
	levCtx, levCancel := context.WithTimeout(ctx, cfg.CallTimeout())
	if err := gateway.SetLeverage(levCtx, inst, cfg.Grid.Leverage); err != nil {
		logrus.Warnf("⚠️ 设置杠杆失败: %v，沿用账户当前杠杆", err)
	}
	levCancel()

	orders := tracker.New()
	ledger := tracker.NewLedger()
	reconcileReq := sigchan.New(1)

	eng := engine.New(engine.Config{
		Spacing:         decimal.NewFromFloat(cfg.Grid.Spacing),
		LevelsPerSide:   cfg.Grid.LevelsPerSide,
		MaxActiveOrders: cfg.Grid.MaxActiveOrders,
		OrderNotional:   decimal.NewFromFloat(cfg.Grid.OrderNotional),
		PlaceCooldown:   cfg.PlaceCooldown(),
		MaxOrderAge:     cfg.MaxOrderAge(),
		CallTimeout:     cfg.CallTimeout(),
	}, inst, gateway, orders, reconcileReq)

	wsCfg := ws.DefaultConfig()
	wsCfg.URL = cfg.Exchange.WsURL
	wsCfg.AccountIndex = cfg.Exchange.AccountIndex
	wsCfg.StaleAfter = time.Duration(cfg.Timing.StaleAfterSec) * time.Second
	supervisor := ws.NewSupervisor(wsCfg, cfg.Symbol)

	var sim lifecycle.FillSimulator
	if pg, ok := gateway.(*paper.Gateway); ok {
		sim = pg
	}

	controller := lifecycle.New(lifecycle.Config{
		SyncInterval:    time.Duration(cfg.Timing.SyncIntervalSec) * time.Second,
		CleanupInterval: time.Duration(cfg.Timing.CleanupIntervalSec) * time.Second,
		ShutdownTimeout: time.Duration(cfg.Timing.ShutdownTimeoutSec) * time.Second,
		CallTimeout:     cfg.CallTimeout(),
	}, gateway, eng, orders, ledger, supervisor.Events(), reconcileReq, sim)

	if err := supervisor.Start(ctx); err != nil {
		logrus.Errorf("❌ 启动 WebSocket 失败: %v", err)
		os.Exit(1)
	}

	go controller.Run(ctx)

	// 优雅关闭：先停事件循环（撤单），再停 WebSocket
	shutdownMgr := shutdown.NewManager()
	shutdownMgr.OnShutdown(func(sctx context.Context, wg *sync.WaitGroup) {
		defer wg.Done()
		controller.RequestStop()
		select {
		case <-controller.Done():
		case <-sctx.Done():
		}
	})
	shutdownMgr.OnShutdown(func(sctx context.Context, wg *sync.WaitGroup) {
		defer wg.Done()
		<-controller.Done()
		supervisor.Stop()
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logrus.Infof("🛑 收到信号 %s，开始关闭", sig)
	case <-controller.Done():
		logrus.Info("事件循环已退出")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Timing.ShutdownTimeoutSec)*time.Second)
	shutdownMgr.Shutdown(shutdownCtx)
	shutdownCancel()
	cancel()

	os.Exit(controller.ExitCode())
}

// buildGateway 按模式选择网关：纸交易用本地模拟，实盘用 Lighter REST
func buildGateway(cfg *config.Config) (ports.ExchangeGateway, error) {
	if cfg.DryRun {
		logrus.Info("📋 纸交易模式：订单只在本地模拟")
		return paper.NewGateway(), nil
	}

	apiKey, apiSecret, err := loadCredentials()
	if err != nil {
		return nil, err
	}

	return lighter.NewGateway(lighter.Config{
		BaseURL:      cfg.Exchange.BaseURL,
		APIKey:       apiKey,
		APISecret:    apiSecret,
		AccountIndex: cfg.Exchange.AccountIndex,
		Timeout:      cfg.CallTimeout(),
	}), nil
}

// loadCredentials 加载 API 凭据
// 优先用环境变量，缺失时回退到加密的 badger 密钥库
func loadCredentials() (string, string, error) {
	apiKey := strings.TrimSpace(os.Getenv("LIGHTER_API_KEY"))
	apiSecret := strings.TrimSpace(os.Getenv("LIGHTER_API_SECRET"))
	if apiKey != "" && apiSecret != "" {
		return apiKey, apiSecret, nil
	}

	dbPath := os.Getenv("GOLIGHTER_SECRET_DB")
	if dbPath == "" {
		dbPath = "data/secrets.badger"
	}
	keyBytes, err := secretstore.ParseKey(os.Getenv("GOLIGHTER_SECRET_KEY"))
	if err != nil {
		return "", "", fmt.Errorf("解析密钥库加密密钥失败: %w", err)
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          dbPath,
		EncryptionKey: keyBytes,
		ReadOnly:      true,
	})
	if err != nil {
		return "", "", fmt.Errorf("打开密钥库失败（也可设置 LIGHTER_API_KEY/LIGHTER_API_SECRET 环境变量）: %w", err)
	}
	defer ss.Close()

	apiKey, apiSecret, found, err := ss.Credentials()
	if err != nil {
		return "", "", err
	}
	if !found {
		return "", "", fmt.Errorf("密钥库中未找到 API 凭据")
	}
	logrus.Info("✅ 从密钥库加载 API 凭据")
	return apiKey, apiSecret, nil
}

// fetchInstrument 拉取市场约束，失败时用保守默认值
func fetchInstrument(ctx context.Context, gateway ports.ExchangeGateway, cfg *config.Config) domain.Instrument {
	metaCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout())
	defer cancel()

	inst, err := gateway.InstrumentMeta(metaCtx, cfg.Symbol)
	if err != nil {
		logrus.Warnf("⚠️ 拉取市场约束失败: %v，使用保守默认值", err)
		return domain.DefaultInstrument(cfg.Symbol)
	}
	logrus.Infof("✅ 市场约束 %s: tick=%s lot=%s min_notional=%s",
		inst.Symbol, inst.TickSize, inst.LotSize, inst.MinNotional)
	return inst
}
