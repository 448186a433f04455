package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/annel0/polyview/internal/app"
	"github.com/annel0/polyview/internal/config"
	"github.com/annel0/polyview/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $POLYVIEW_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	logs := logging.GetLoggerManager()
	logs.SetLevels(logging.ParseLevel(cfg.Logging.Level), logging.DEBUG)
	logging.InitDefaultLogger(logging.ComponentServer)
	defer logs.CloseAll()

	logging.Info("🎮 Запуск PolyView...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		logging.Error("❌ Ошибка сборки сервера: %v", err)
		log.Fatalf("❌ Ошибка сборки сервера: %v", err)
	}

	logging.Info("💡 curl http://localhost:%d/health", cfg.Server.GetRESTPort())
	if err := server.Run(ctx); err != nil {
		logging.Error("❌ Сервер остановлен с ошибкой: %v", err)
	}

	logging.Info("📡 Завершение работы...")
	if err := server.Close(); err != nil {
		logging.Error("❌ Ошибка остановки: %v", err)
	}
	logging.Info("👋 Сервер успешно остановлен")
}
