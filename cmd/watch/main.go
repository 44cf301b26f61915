package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockguard/internal/reconciler"
)

// watch 是一个终端实时客户端：预热本地缓存后订阅事件流，
// 每收到一条事件打印当前缓存概况。断线后自动重连，Ctrl-C 退出。
func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	wsURL := flag.String("ws", "ws://localhost:8080/ws", "websocket url")
	backoff := flag.Duration("backoff", 3*time.Second, "reconnect backoff")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rec *reconciler.Reconciler
	rec = reconciler.New(reconciler.Config{
		BaseURL:        *baseURL,
		WSURL:          *wsURL,
		ReconnectDelay: *backoff,
		OnApply: func(eventType string) {
			snap := rec.Snapshot()
			line := fmt.Sprintf("[%s] products=%d categories=%d",
				eventType, len(snap.Products), len(snap.Categories))
			if snap.Status != nil {
				line += fmt.Sprintf(" clients=%d", snap.Status.ConnectedClients)
			}
			if snap.Alert != nil {
				line += fmt.Sprintf(" ALERT %s: %s", snap.Alert.Product, snap.Alert.Message)
			}
			fmt.Println(line)
		},
	})

	fmt.Printf("watching %s (ws %s)\n", *baseURL, *wsURL)
	rec.Run(ctx)
}
