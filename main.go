package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"plantdoc-yolo/cmd"
)

func main() {
	// Ctrl+C で書き出しを中断する
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		stop()
		os.Exit(1)
	}
}
