// Command platform_probe sends one prompt to every configured platform and
// prints what the analyzer makes of each answer. Nothing is stored.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/patientsignal/signal-workflows/internal/analyzer"
	"github.com/patientsignal/signal-workflows/internal/config"
	"github.com/patientsignal/signal-workflows/internal/logging"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/providers"
	"github.com/patientsignal/signal-workflows/internal/providers/common"
	"github.com/patientsignal/signal-workflows/services"
	"github.com/patientsignal/signal-workflows/workflows"
)

func main() {
	prompt := flag.String("prompt", "강남역 근처 임플란트 잘하는 치과 추천해줘", "prompt sent to each platform")
	hospital := flag.String("hospital", "", "hospital name the analyzer looks for")
	platforms := flag.String("platforms", "", "comma separated platforms; empty means every available one")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Println("⚠️  No .env file found, using environment variables")
	}

	cfg := config.Load()
	logging.Setup("development", cfg.LogLevel)

	registry := providers.NewRegistry(cfg, services.NewCostService())
	keys := map[models.Platform]string{
		models.PlatformChatGPT:    cfg.Platforms.ChatGPT.APIKey,
		models.PlatformClaude:     cfg.Platforms.Claude.APIKey,
		models.PlatformPerplexity: cfg.Platforms.Perplexity.APIKey,
		models.PlatformGemini:     cfg.Platforms.Gemini.APIKey,
	}
	fmt.Println("📋 Platform credentials:")
	for platform, ok := range registry.Status() {
		mark := "❌"
		if ok {
			mark = "✅"
		}
		fmt.Printf("  %s %-10s %s\n", mark, platform, common.MaskAPIKey(keys[platform]))
	}

	var requested []string
	if *platforms != "" {
		requested = strings.Split(*platforms, ",")
	}
	targets := registry.Available(workflows.ParsePlatforms(requested))
	if len(targets) == 0 {
		fmt.Println("❌ No platform has a usable credential")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	responseAnalyzer := analyzer.New(cfg)
	fmt.Printf("\n🎯 Prompt: %s\n", *prompt)

	start := time.Now()
	for _, result := range registry.QueryAllPlatforms(ctx, *prompt, targets) {
		fmt.Printf("\n=== %s ===\n", result.Platform)
		if result.Err != nil || result.Response == nil {
			fmt.Printf("❌ %v\n", result.Err)
			continue
		}
		resp := result.Response
		fmt.Printf("model=%s tokens=%d/%d cost=$%.6f\n", resp.Model, resp.InputTokens, resp.OutputTokens, resp.Cost)
		fmt.Println(resp.Text)

		if *hospital != "" {
			analysis := responseAnalyzer.Analyze(ctx, resp.Text, *hospital, result.Platform, resp.Model)
			out, _ := json.MarshalIndent(analysis, "", "  ")
			fmt.Printf("\n📊 Analysis:\n%s\n", out)
		}
	}
	fmt.Printf("\n✅ Done in %v\n", time.Since(start).Round(time.Millisecond))
}
