package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/myafeier/qrcam/config"
	"github.com/myafeier/qrcam/scanner"
)

// 终端版：扫到一个二维码就打印出来并退出
func main() {
	cfg, err := config.FromFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("config: %+v", err)
	}
	backend, err := cfg.Backend()
	if err != nil {
		log.Fatalf("camera: %v", err)
	}

	opts := cfg.Options()
	opts.PreviewEveryNth = 0

	var text string
	session := scanner.NewSession(backend, scanner.NotifierFunc(func(event, payload string) error {
		if event == scanner.EventQRDetected {
			text = payload
		}
		return nil
	}), opts)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	msg, err := session.Start(ctx)
	if err != nil {
		log.Fatalf("scan: %v", err)
	}
	if text == "" {
		log.Println(msg)
		os.Exit(1)
	}
	fmt.Println(text)
}
