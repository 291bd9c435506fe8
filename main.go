package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/myafeier/qrcam/config"
	"github.com/myafeier/qrcam/scanner"
	"github.com/myafeier/qrcam/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.FromFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("config: %+v", err)
	}

	backend, err := cfg.Backend()
	if err != nil {
		// 没有摄像头也照常启动，start_camera 时再报错
		log.Printf("camera backend unavailable: %v\n", err)
		backend = nil
	} else if list, err := backend.Devices(); err != nil {
		log.Printf("enumerate devices: %v\n", err)
	} else {
		fmt.Printf("发现:%d套设备\n", len(list))
		for k, v := range list {
			fmt.Printf("k: %d, v: %+v\n", k, v)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := server.NewHub()
	stream := server.NewMJPEG()
	session := scanner.NewSession(backend, server.Tee{hub, stream}, cfg.Options())
	session.Instrument(scanner.NewMetrics(reg))

	registry := server.NewRegistry()
	(&server.CameraCommands{Session: session, Notifier: hub}).Register(registry)

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: (&server.Server{
			Registry:  registry,
			Hub:       hub,
			Stream:    stream,
			Backend:   backend,
			Gatherer:  reg,
			StaticDir: cfg.StaticDir,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("listening on %s, commands: %v\n", cfg.Listen, registry.Names())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session.Stop()
	if err := session.Drain(ctx); err != nil {
		log.Printf("waiting for capture loop: %v\n", err)
	}
	hub.Close()
	stream.Close()
	srv.Shutdown(ctx)
}
