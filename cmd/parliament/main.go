// Command parliament runs the expert-panel conversation service: the
// HTTP API, the in-memory session store, and the sqlite archive.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/term"

	"parliament/pkg/agent"
	"parliament/pkg/config"
	"parliament/pkg/conversation"
	"parliament/pkg/logx"
	"parliament/pkg/metrics"
	"parliament/pkg/parliament"
	"parliament/pkg/persistence"
	"parliament/pkg/session"
	"parliament/pkg/version"
	"parliament/pkg/webui"
)

func main() {
	var (
		projectDir  = flag.String("projectdir", ".", "Project directory")
		addr        = flag.String("addr", "", "Listen address (overrides config)")
		tee         = flag.Bool("tee", false, "Output logs to both console and file (default: file only)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("parliament %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
		os.Exit(0)
	}

	// Initialize log file rotation BEFORE any logging occurs so config
	// loading is captured too.
	logsDir := filepath.Join(*projectDir, ".parliament", "logs")
	if err := logx.InitializeLogFile(logsDir, 4, *tee); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize log file: %v\n", err)
		os.Exit(1)
	}

	exitCode := run(*projectDir, *addr)

	if closeErr := logx.CloseLogFile(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", closeErr)
	}
	os.Exit(exitCode)
}

// run contains the main application logic and returns an exit code.
// This allows defers in main() to execute before os.Exit is called.
func run(projectDir, addrOverride string) int {
	logger := logx.NewLogger("parliament-main")

	if projectDir == "." {
		config.LogInfo("-projectdir not set, using the current directory")
	}

	if err := config.LoadConfig(projectDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	if err := handleSecretsDecryption(projectDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to handle secrets: %v\n", err)
		return 1
	}

	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get config: %v\n", err)
		return 1
	}

	recorder := metrics.NewPrometheusRecorder()
	factory := agent.NewLLMClientFactory(cfg, recorder)

	expertClient, err := factory.CreateClient(agent.RoleExpert)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create expert client: %v\n", err)
		return 1
	}
	synthClient, err := factory.CreateClient(agent.RoleSynthesizer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create synthesizer client: %v\n", err)
		return 1
	}
	chairClient, err := factory.CreateClient(agent.RoleChair)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create chair client: %v\n", err)
		return 1
	}

	catalog, err := parliament.LoadCatalog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load persona catalog: %v\n", err)
		return 1
	}

	archivePath := cfg.Archive.Path
	if !filepath.IsAbs(archivePath) {
		archivePath = filepath.Join(projectDir, archivePath)
	}
	archive, err := persistence.Open(archivePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open archive: %v\n", err)
		return 1
	}
	defer func() {
		if closeErr := archive.Close(); closeErr != nil {
			logger.Error("Failed to close archive: %v", closeErr)
		}
	}()

	store := session.NewStore()
	engine := conversation.NewEngine(conversation.Deps{
		Store:       store,
		Collector:   parliament.NewCollector(expertClient, catalog),
		Synthesizer: parliament.NewSynthesizer(synthClient),
		Chair:       parliament.NewChair(chairClient, synthClient, catalog),
		FirstClient: expertClient,
		Catalog:     catalog,
		Archive:     archive,
		Recorder:    recorder,
		Config:      cfg.Parliament,
	})

	addr := addrOverride
	if addr == "" {
		addr = webui.ListenAddr()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := webui.NewServer(engine, store, archive)
	if err := server.StartServer(ctx, addr); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start web server: %v\n", err)
		return 1
	}

	config.LogInfo("Parliament is listening on %s", addr)

	<-ctx.Done()
	logger.Info("Received shutdown signal, exiting")
	return 0
}

// handleSecretsDecryption loads credentials into memory. With a secrets
// file present the password comes from PARLIAMENT_PASSWORD or an
// interactive prompt; without one, keys fall back to environment
// variables through the normal secret precedence.
func handleSecretsDecryption(projectDir string) error {
	password := os.Getenv("PARLIAMENT_PASSWORD")

	if !config.SecretsFileExists(projectDir) {
		config.SetServicePassword(password)
		return nil
	}

	maxAttempts := 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if password == "" {
			fmt.Print("Enter the project password: ")
			passwordBytes, err := term.ReadPassword(syscall.Stdin)
			fmt.Println()
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = string(passwordBytes)
			for i := range passwordBytes {
				passwordBytes[i] = 0
			}
		}

		secrets, err := config.DecryptSecretsFile(projectDir, password)
		if err == nil {
			config.SetDecryptedSecrets(secrets)
			config.SetServicePassword(password)
			return nil
		}

		fmt.Printf("Could not decrypt secrets: %v\n", err)
		password = ""
	}
	return fmt.Errorf("failed to decrypt secrets after %d attempts", maxAttempts)
}
