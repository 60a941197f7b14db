package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/yudurobotics/zing-bridge/adapters/gemini"
	"github.com/yudurobotics/zing-bridge/adapters/mock"
	"github.com/yudurobotics/zing-bridge/adapters/openai"
	"github.com/yudurobotics/zing-bridge/domain/entities"
	"github.com/yudurobotics/zing-bridge/domain/repositories"
	"github.com/yudurobotics/zing-bridge/internal/affect"
	"github.com/yudurobotics/zing-bridge/internal/api"
	"github.com/yudurobotics/zing-bridge/internal/auth"
	"github.com/yudurobotics/zing-bridge/internal/config"
	"github.com/yudurobotics/zing-bridge/internal/ingest"
	"github.com/yudurobotics/zing-bridge/internal/session"
	"github.com/yudurobotics/zing-bridge/internal/stats"
	"github.com/yudurobotics/zing-bridge/internal/websocket"
)

func main() {
	// A .env file is optional; real deployments set the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := stats.New()

	bridge, err := newUpstream(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("upstream bridge init failed", zap.Error(err))
	}

	// Affect pipeline: sensor ingest feeds the engine, reports echo back
	// over UDP, mode changes steer the upstream prompt.
	engine := affect.NewEngine(logger, st, bridge, affect.Config{
		Workers: cfg.AffectWorkers,
		Dwell:   cfg.AffectModeDwell,
		Persona: entities.Persona(cfg.Persona),
	})

	mux := ingest.NewMux(logger, st, engine)
	sensorUDP := ingest.NewUDPServer(logger, st, mux, cfg.SensorUDPAddr())
	go func() {
		if err := sensorUDP.Serve(ctx); err != nil {
			logger.Fatal("sensor udp listener failed", zap.Error(err))
		}
	}()
	go sensorUDP.WriteReports(engine.Reports())

	if addr := cfg.SensorTCPAddr(); addr != "" {
		sensorTCP := ingest.NewTCPServer(logger, mux, addr)
		go func() {
			if err := sensorTCP.Serve(ctx); err != nil {
				logger.Fatal("sensor tcp listener failed", zap.Error(err))
			}
		}()
	}

	if cfg.MQTTEnabled {
		mqttListener := ingest.NewMQTTListener(logger, mux, ingest.MQTTConfig{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopic,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
		})
		go func() {
			if err := mqttListener.Serve(ctx); err != nil {
				logger.Error("mqtt listener failed", zap.Error(err))
			}
		}()
	}

	// Device session plane: UDP gateway feeds the registry, upstream
	// responses flow back through the same gateway.
	gateway := session.NewGateway(logger, st, cfg.DeviceAddr())
	registry := session.NewRegistry(logger, st, bridge, gateway, session.Config{
		ChunkBytes:     cfg.ChunkBytes,
		LivenessWindow: cfg.LivenessWindow,
		UtteranceDir:   cfg.UtteranceDir,
	}, cfg.MaxSessions)
	go func() {
		if err := gateway.Serve(ctx, registry); err != nil {
			logger.Fatal("device gateway failed", zap.Error(err))
		}
	}()
	go registry.Sweep(ctx, cfg.SweepInterval)
	go session.RelayResponses(registry, bridge.Responses())

	go st.Report(ctx, logger, cfg.StatsInterval)

	// Admin HTTP API with the live telemetry feed.
	hub := websocket.NewHub(st, registry, engine, logger)
	go hub.Run()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	api.InitRoutes(e, registry, engine, st, hub, auth.New(cfg.JWTSecret), logger)

	go func() {
		if err := e.Start(cfg.APIAddr()); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("zing bridge started",
		zap.String("device_addr", cfg.DeviceAddr()),
		zap.String("sensor_udp_addr", cfg.SensorUDPAddr()),
		zap.String("api_addr", cfg.APIAddr()),
		zap.String("upstream", cfg.Upstream))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("bridge is shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server forced to shutdown", zap.Error(err))
	}

	registry.Close()
	engine.Close()
	if err := bridge.Close(); err != nil {
		logger.Error("upstream bridge close failed", zap.Error(err))
	}

	logger.Info("bridge exited")
}

func newUpstream(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.UpstreamBridge, error) {
	switch cfg.Upstream {
	case config.UpstreamOpenAI:
		return openai.NewBridge(openai.Config{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
			Voice:  cfg.OpenAIVoice,
		}, logger)
	case config.UpstreamGemini:
		return gemini.NewBridge(ctx, gemini.Config{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		}, logger)
	default:
		logger.Warn("using echo upstream, responses will mirror device audio")
		bridge := mock.NewBridge()
		bridge.Echo = true
		return bridge, nil
	}
}

func newLogger(level string) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	if parsed, err := zap.ParseAtomicLevel(level); err == nil {
		zapCfg.Level = parsed
	}
	logger, err := zapCfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
