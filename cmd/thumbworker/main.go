package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	commonlog "files_manager/server/common/log"
	filemanapp "files_manager/server/fileman/app"
)

func main() {
	proc, err := filemanapp.NewWorkerProcess(filemanapp.LoadConfig())
	if err != nil {
		log.Fatalf("initialize thumbnail worker: %v", err)
	}
	defer proc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proc.Run(ctx)
	commonlog.Infof("thumbnail worker stopped")
}
