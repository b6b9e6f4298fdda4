package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	commonlog "files_manager/server/common/log"
	filemanapp "files_manager/server/fileman/app"
)

func main() {
	cfg := filemanapp.LoadConfig()
	server, err := filemanapp.NewServer(cfg)
	if err != nil {
		log.Fatalf("initialize files api server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server.StartWorkers()
	go func() {
		commonlog.Infof("start files api http server on :%s", cfg.Port)
		if err := server.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("run files api http server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		commonlog.Errorf("shutdown files api server gracefully: %v", err)
	}
}
