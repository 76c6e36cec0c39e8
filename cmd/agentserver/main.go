// Command agentserver is the C8 subprocess contract: the supervisor
// spawns it with a fixed flag set and hands it an API key over stdin.
// It is never invoked directly by a human.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tinycrab/tinycrab/internal/logger"
	"github.com/tinycrab/tinycrab/pkg/agent"
	"github.com/tinycrab/tinycrab/pkg/agentserver"
)

var providerEnvVar = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"groq":       "GROQ_API_KEY",
	"cerebras":   "CEREBRAS_API_KEY",
	"xai":        "XAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"mistral":    "MISTRAL_API_KEY",
}

func main() {
	id := flag.String("id", "", "agent id")
	port := flag.Int("port", 0, "listen port")
	dataDir := flag.String("data-dir", "", "agent data directory")
	provider := flag.String("provider", "openai", "LLM provider")
	model := flag.String("model", "", "LLM model")
	flag.Parse()

	if *id == "" || *port == 0 || *dataDir == "" {
		fmt.Fprintln(os.Stderr, "agentserver: --id, --port, and --data-dir are required")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: "info", Console: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentserver: init logger:", err)
		os.Exit(1)
	}

	authStore := agent.NewAuthStore()
	authStore.Set(*provider, readAPIKey(*provider))

	srv, err := agentserver.New(agentserver.Config{
		ID:        *id,
		Port:      *port,
		DataDir:   *dataDir,
		Provider:  *provider,
		Model:     *model,
		AuthStore: authStore,
		Logger:    log.GetZerolog(),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentserver: init:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := srv.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "agentserver: run:", err)
		os.Exit(1)
	}
}

// readAPIKey implements §4.8 step 2: read one newline-terminated line from
// stdin within 1s; on timeout or an empty/non-interactive stdin, fall back
// to the provider's environment variable and delete it from the process's
// own environment so the secret doesn't linger there.
func readAPIKey(provider string) string {
	lineCh := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			lineCh <- strings.TrimSpace(scanner.Text())
			return
		}
		lineCh <- ""
	}()

	select {
	case line := <-lineCh:
		if line != "" {
			return line
		}
	case <-time.After(1 * time.Second):
	}

	envVar, ok := providerEnvVar[provider]
	if !ok {
		return ""
	}
	key := os.Getenv(envVar)
	os.Unsetenv(envVar)
	return key
}
