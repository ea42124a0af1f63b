package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"quizsolver"
)

// One-shot mode: ingest a document, solve it in-process, and print the quiz.
// Useful for trying a document without a running worker or redis.
func main() {
	var (
		filePath = flag.String("file", "", "document to solve (.pdf, .docx, .txt)")
		dbPath   = flag.String("db", "", "sqlite database path (overrides QUIZSOLVER_DB)")
		list     = flag.Bool("list", false, "list stored quizzes instead of solving")
		limit    = flag.Int("limit", 20, "max quizzes to list")
	)
	flag.Parse()

	cfg := quizsolver.LoadConfig()
	if *dbPath != "" {
		cfg.DBPath = *dbPath
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

	ctx := context.Background()

	if *list {
		quizzes, err := db.GetQuizzes(ctx, *limit)
		if err != nil {
			log.Fatal("failed to list quizzes", "error", err)
		}
		for _, q := range quizzes {
			fmt.Printf("%s  %-10s  %3d questions  %s\n", q.ID, q.Status, q.TotalQuestions, q.Title)
		}
		return
	}

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: quizsolver -file exam.pdf")
		os.Exit(1)
	}

	queue := quizsolver.NewMemoryQueue()
	uploads, err := quizsolver.NewUploadService(db, queue, cfg.UploadDir, log)
	if err != nil {
		log.Fatal("failed to prepare upload staging", "error", err)
	}

	f, err := os.Open(*filePath)
	if err != nil {
		log.Fatal("failed to open document", "error", err)
	}
	outcome, err := uploads.Intake(ctx, f, filepath.Base(*filePath), "cli")
	f.Close()
	if err != nil {
		log.Fatal("upload rejected", "error", err)
	}
	if outcome.IsDuplicate() {
		fmt.Printf("identical document already solved as quiz %s\n", outcome.DuplicateOf)
		printQuiz(ctx, db, outcome.DuplicateOf)
		return
	}

	storage, err := quizsolver.NewLocalStorage(cfg.StorageDir, log)
	if err != nil {
		log.Fatal("failed to prepare storage", "error", err)
	}
	cache := quizsolver.NewSemanticCache(db, log)
	orchestrator := quizsolver.NewOrchestrator(cache, cfg.Providers(log), quizsolver.OrchestratorOptions{}, log)
	parser := quizsolver.NewDocumentParser(log)
	pipeline := quizsolver.NewPipeline(db, parser, orchestrator, storage, log)

	job, err := queue.Dequeue(ctx, time.Second)
	if err != nil || job == nil {
		log.Fatal("no job staged", "error", err)
	}
	if err := pipeline.ProcessJob(ctx, *job); err != nil {
		log.Fatal("solve failed", "error", err)
	}

	printQuiz(ctx, db, outcome.Quiz.ID)
}

func printQuiz(ctx context.Context, db *quizsolver.DB, id string) {
	quiz, err := db.GetQuiz(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load quiz: %v\n", err)
		os.Exit(1)
	}
	out, err := json.MarshalIndent(quiz, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode quiz: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
