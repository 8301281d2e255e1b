package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/siherrmann/playbook"
	"github.com/siherrmann/playbook/embedding"
	"github.com/siherrmann/playbook/helper"
	"github.com/siherrmann/playbook/model"
)

// Persistent variant: pgvector index, OpenAI embeddings. Needs
// OPENAI_API_KEY in the environment or a .env file. The database runs in a
// throwaway container, swap in your own DatabaseConfiguration for real use.
func main() {
	_ = godotenv.Load()

	corpusPath := "corpus.yaml"
	if len(os.Args) > 1 {
		corpusPath = os.Args[1]
	}

	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	embedder, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
		Model: "text-embedding-3-large",
	})
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}

	config, err := model.LoadRetrievalConfig("retrieval.yaml")
	if err != nil {
		log.Fatalf("Failed to load retrieval config: %v", err)
	}
	config.EmbeddingDim = embedder.Dimension()

	p, err := playbook.NewPlaybookWithDatabase(corpusPath, config, embedder, dbConfig)
	if err != nil {
		log.Fatalf("Failed to create playbook: %v", err)
	}
	defer p.Close()

	ctx := context.Background()

	// Warmup: rebuild only if the index is empty
	count, err := p.IndexAll(ctx, false)
	if err != nil {
		log.Fatalf("Failed to index corpus: %v", err)
	}
	fmt.Printf("Index ready with %d chunks\n", count)

	info, err := p.IndexInfo(ctx)
	if err != nil {
		log.Fatalf("Failed to read index info: %v", err)
	}
	fmt.Printf("Backend %s, generation %s\n\n", info.Backend, info.Generation)

	// Simulate a short conversation
	conversationContext := "guest asked about visiting for a single day"
	message := "cuánto cuesta el pasadía"

	fmt.Printf("=== Guest: %s ===\n", message)
	fmt.Println(p.Retrieve(ctx, message, conversationContext, 3))
}
