package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/siherrmann/playbook"
	"github.com/siherrmann/playbook/embedding"
	"github.com/siherrmann/playbook/model"
)

const sampleCorpus = `IDENTITY:
  name: front desk assistant
  tone: warm and concise
  languages: answer in the language the guest writes in
ESCALATION:
  handover: offer to transfer to a human agent when the playbook has no answer
PRICING:
  daypass_sales_protocol:
    price_usd: 25
    includes: pool access and towels
    payment: cash or card at reception
    hours: 9am to 6pm
  room_rates:
    standard_usd: 80
    suite_usd: 140
    breakfast_included: true
POLICY:
  pet_policy:
    allowed: false
    exception: certified service animals with documentation
  cancellation:
    free_until: 48 hours before arrival
    late_fee: one night charge
`

func main() {
	// Write the sample corpus to a temp file
	corpusFile, err := os.CreateTemp("", "corpus-*.yaml")
	if err != nil {
		log.Fatalf("Failed to create corpus file: %v", err)
	}
	defer os.Remove(corpusFile.Name())
	if _, err := corpusFile.WriteString(sampleCorpus); err != nil {
		log.Fatalf("Failed to write corpus file: %v", err)
	}
	corpusFile.Close()

	// Local sentence transformer, 384 dimensions, no API key needed
	embedder, err := embedding.NewLocalEmbedder()
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}

	config := model.DefaultRetrievalConfig()
	config.AlwaysOnSections = []string{"IDENTITY", "ESCALATION"}
	config.RetrievableSections = []string{"PRICING", "POLICY"}
	config.SectionDescriptions = map[string]string{
		"PRICING": "Prices and payment conditions",
		"POLICY":  "House rules and policies",
	}
	config.RepresentativeQueries = map[string][]string{
		"daypass_sales_protocol": {"cuánto cuesta el pasadía", "how much is the day pass"},
		"pet_policy":             {"can I bring my dog", "are pets allowed"},
	}
	config.EmbeddingDim = embedder.Dimension()

	p, err := playbook.NewPlaybook(corpusFile.Name(), &config, embedder)
	if err != nil {
		log.Fatalf("Failed to create playbook: %v", err)
	}
	defer p.Close()

	ctx := context.Background()

	// Build the index
	count, err := p.IndexAll(ctx, true)
	if err != nil {
		log.Fatalf("Failed to index corpus: %v", err)
	}
	fmt.Printf("Indexed %d chunks\n\n", count)

	// The always-on prompt is cached after the first call
	corePrompt, err := p.CorePrompt(ctx)
	if err != nil {
		log.Fatalf("Failed to build core prompt: %v", err)
	}
	fmt.Printf("=== Core prompt (%d chars) ===\n%s\n\n", len(corePrompt), corePrompt)

	// Retrieve playbook context for incoming guest messages
	for _, message := range []string{
		"cuánto cuesta el pasadía",
		"can I bring my dog to the hotel?",
	} {
		fmt.Printf("=== Guest: %s ===\n", message)
		fmt.Println(p.Retrieve(ctx, message, "", 2))
		fmt.Println()
	}
}
