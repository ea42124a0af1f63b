package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"quizsolver"
)

func main() {
	var (
		dbPath      = flag.String("db", "", "sqlite database path (overrides QUIZSOLVER_DB)")
		concurrency = flag.Int("concurrency", 0, "parallel job slots (overrides BULLMQ_QUIZ_CONCURRENCY)")
	)
	flag.Parse()

	cfg := quizsolver.LoadConfig()
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *concurrency > 0 {
		cfg.Concurrency = *concurrency
	}

	log, err := quizsolver.NewLogger(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := quizsolver.OpenDB(cfg.DBPath, log)
	if err != nil {
		log.Fatal("failed to open database", "error", err)
	}
	defer db.CloseDB()
	if err := db.CreateTables(); err != nil {
		log.Fatal("failed to create schema", "error", err)
	}

	queue, err := quizsolver.NewRedisQueue(cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisDB, log)
	if err != nil {
		log.Fatal("failed to connect to redis", "error", err)
	}
	defer queue.Close()

	storage, err := quizsolver.NewLocalStorage(cfg.StorageDir, log)
	if err != nil {
		log.Fatal("failed to prepare storage", "error", err)
	}

	cache := quizsolver.NewSemanticCache(db, log)
	orchestrator := quizsolver.NewOrchestrator(cache, cfg.Providers(log), quizsolver.OrchestratorOptions{}, log)
	parser := quizsolver.NewDocumentParser(log)
	pipeline := quizsolver.NewPipeline(db, parser, orchestrator, storage, log)
	worker := quizsolver.NewWorker(queue, pipeline, db, quizsolver.WorkerOptions{
		Concurrency: cfg.Concurrency,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker.Run(ctx)
}
