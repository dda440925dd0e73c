// Package main implements an interactive terminal chat against one device
// manual. Useful for trying prompts and retrieval quality without the API.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/MedManualAI/medmanual-mvp/engine/answer"
	"github.com/MedManualAI/medmanual-mvp/engine/catalog"
	"github.com/MedManualAI/medmanual-mvp/engine/domain"
	"github.com/MedManualAI/medmanual-mvp/engine/fetch"
	"github.com/MedManualAI/medmanual-mvp/engine/images"
	"github.com/MedManualAI/medmanual-mvp/engine/index"
	"github.com/MedManualAI/medmanual-mvp/engine/pdfdoc"
	"github.com/MedManualAI/medmanual-mvp/pkg/llm"
)

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func main() {
	_ = godotenv.Load()

	manufacturer := flag.String("manufacturer", "", "device manufacturer")
	model := flag.String("model", "", "device model (required)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if *model == "" {
		fmt.Fprintln(os.Stderr, "usage: chat -model \"Fabius GS\" [-manufacturer Drager]")
		os.Exit(2)
	}

	if err := run(*manufacturer, *model, logger); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(manufacturer, model string, logger *slog.Logger) error {
	cat, err := catalog.Load(os.Getenv("CATALOG_PATH"))
	if err != nil {
		return err
	}

	llmCfg := llm.Config{
		BaseURL: envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		APIKey:  os.Getenv("OPENAI_API_KEY"),
	}
	embed := llm.NewEmbedClient(llmCfg, envOr("EMBED_MODEL", "text-embedding-3-small"), 10, 2)
	chat := llm.NewChatClient(llm.Config{BaseURL: llmCfg.BaseURL, APIKey: llmCfg.APIKey, Timeout: 90 * time.Second},
		envOr("CHAT_MODEL", "gpt-4o-mini"), 1024)

	backend := index.NewDiskBackend(envOr("INDEX_DIR", "vector_indexes"))
	store := index.NewStore(pdfdoc.NewReader(), embed, backend, index.Options{}, logger)
	extractor := images.New(envOr("IMAGES_DIR", "manual_images"), images.Options{}, logger)
	fetcher := fetch.New(fetch.Options{}, logger)

	svc := answer.New(cat, fetcher, store, embed, chat, extractor, answer.Options{}, logger)

	fmt.Printf("Chatting about %s %s. Empty line or Ctrl-D exits.\n", manufacturer, model)

	var history []domain.ConversationTurn
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			break
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		res := svc.Ask(ctx, answer.AskRequest{
			Manufacturer: manufacturer,
			Model:        model,
			Question:     question,
			History:      history,
		})
		cancel()

		if res.Failed() {
			fmt.Printf("[%s] %s\n", res.ErrorKind, res.Error)
			continue
		}

		fmt.Println(res.Answer)
		fmt.Printf("  confidence %.3f", res.Confidence)
		for _, src := range res.Sources {
			if src.PageLabel != "" {
				fmt.Printf("  [p.%s %.3f]", src.PageLabel, src.Score)
			}
		}
		fmt.Println()
		for _, img := range res.Images {
			fmt.Printf("  figure: %s (%dx%d, p.%s)\n", img.URL, img.Width, img.Height, img.PageLabel)
		}

		history = append(history,
			domain.ConversationTurn{Role: domain.RoleUser, Content: question},
			domain.ConversationTurn{Role: domain.RoleAssistant, Content: res.Answer},
		)
	}
	return scanner.Err()
}
