// Package cli wires configuration, login and the TUI into the parley
// command.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tOgg1/parley/internal/client"
	"github.com/tOgg1/parley/internal/config"
	"github.com/tOgg1/parley/internal/logging"
	"github.com/tOgg1/parley/internal/tui"
)

var (
	flagConfigFile string
	flagLogLevel   string
	flagLogFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "parley [server] [storage-dir]",
	Short: "Terminal chat client",
	Long: `Parley is a terminal chat client. It connects to a server, mirrors the
ranked room list and the open room timelines locally, and renders them in a
TUI. The server can also come from config (server:) or PARLEY_SERVER.`,
	Args:          cobra.MaximumNArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "config file (default is $HOME/.config/parley/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "override logging format (json, console)")
}

// Execute runs the root command.
func Execute(version string) error {
	rootCmd.Version = version
	return rootCmd.Execute()
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if len(args) >= 1 {
		cfg.Server = args[0]
	}
	if len(args) >= 2 {
		cfg.Storage.Dir = args[1]
	}
	if cfg.Server == "" {
		return fmt.Errorf("a server is required: pass it as the first argument or set server: in config")
	}

	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	if err := logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		File:         cfg.LogFile(),
		EnableCaller: cfg.Logging.EnableCaller,
	}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logger := logging.Component("cli")
	logger.Info().Str("server", cfg.Server).Str("storage_dir", cfg.Storage.Dir).Msg("parley starting")

	chatClient, err := client.NewBuilder().
		ServerName(cfg.Server).
		StorageDir(cfg.Storage.Dir).
		BusyTimeoutMs(cfg.Storage.BusyTimeoutMs).
		Build()
	if err != nil {
		return fmt.Errorf("build client: %w", err)
	}
	defer chatClient.Close()

	if !chatClient.Restored() {
		if err := loginInteractive(cmd.Context(), chatClient); err != nil {
			return err
		}
	} else {
		logger.Info().Str("user_id", chatClient.UserID()).Msg("restored session")
	}

	syncService, err := chatClient.SyncService()
	if err != nil {
		return fmt.Errorf("sync service: %w", err)
	}

	return tui.Run(syncService, tui.Config{
		FrameInterval: cfg.UI.FrameInterval,
		StatusTTL:     cfg.UI.StatusTTL,
		TimelineLimit: cfg.UI.TimelineLimit,
	})
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flagConfigFile != "" {
		cfg, err = config.LoadFromFile(flagConfigFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.Logging.Format = flagLogFormat
	}
	return cfg, nil
}

// credentialPrompt asks for a username and password. A prompt error aborts
// the login flow; a rejected login does not.
type credentialPrompt func() (username, password string, err error)

// loginInteractive prompts for credentials on the terminal until a login
// succeeds. The password is read without echo.
func loginInteractive(ctx context.Context, chatClient *client.Client) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("no stored session and stdin is not a terminal; log in interactively first")
	}
	fmt.Println("Logging in with username and password…")
	return loginLoop(ctx, chatClient, promptTerminal)
}

// loginLoop retries the prompt until the server accepts the credentials.
// Bad credentials are reported and re-prompted; only prompt failures and
// context cancellation abort.
func loginLoop(ctx context.Context, chatClient *client.Client, prompt credentialPrompt) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		username, password, err := prompt()
		if err != nil {
			return err
		}
		if username == "" {
			fmt.Println("A username is required, please try again.")
			continue
		}

		if err := chatClient.Login(ctx, username, password); err != nil {
			fmt.Printf("Error logging in: %v\nPlease try again.\n\n", err)
			continue
		}
		return nil
	}
}

func promptTerminal() (string, string, error) {
	fmt.Print("Username: ")
	reader := bufio.NewReader(os.Stdin)
	username, err := reader.ReadString('\n')
	if err != nil {
		return "", "", fmt.Errorf("read username: %w", err)
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(username), string(password), nil
}
