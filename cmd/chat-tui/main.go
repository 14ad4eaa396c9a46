// ABOUTME: TUI client for 1:1 conversations against the chatd gateway
// ABOUTME: REST for durable sends and history, websocket pushes for realtime delivery

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"

	"github.com/Hashimp6/beeeuu-chat/internal/chat"
	"github.com/Hashimp6/beeeuu-chat/internal/client"
	"github.com/Hashimp6/beeeuu-chat/internal/session"
	"github.com/Hashimp6/beeeuu-chat/internal/transport"
)

// tuiConfig is the optional TOML config at
// $XDG_CONFIG_HOME/beeeuu/chat-tui.toml. Flags override file values.
type tuiConfig struct {
	Server string `toml:"server"`
	UserID string `toml:"user_id"`
	Token  string `toml:"token"`
}

func configPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "beeeuu", "chat-tui.toml")
}

func loadConfig() tuiConfig {
	cfg := tuiConfig{Server: "http://localhost:8080"}
	path := configPath()
	if path == "" {
		return cfg
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: reading %s: %v\n", path, err)
	}
	if cfg.Server == "" {
		cfg.Server = "http://localhost:8080"
	}
	return cfg
}

// getToken resolves the session token: CHAT_TOKEN env var, then the
// config file, then ~/.config/beeeuu/token.
func getToken(cfg tuiConfig) string {
	if token := os.Getenv("CHAT_TOKEN"); token != "" {
		return token
	}
	if cfg.Token != "" {
		return cfg.Token
	}

	path := configPath()
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(filepath.Dir(path), "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func main() {
	cfg := loadConfig()

	server := flag.String("server", cfg.Server, "Gateway server URL")
	userID := flag.String("user", cfg.UserID, "Your user id")
	peerID := flag.String("peer", "", "Counterpart user id to open on start")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "Error: --user is required (or user_id in chat-tui.toml)")
		os.Exit(1)
	}

	token := getToken(cfg)
	if token == "" {
		fmt.Fprintln(os.Stderr, "Error: no session token (set CHAT_TOKEN or token in chat-tui.toml)")
		os.Exit(1)
	}

	fmt.Printf("chat-tui connected to %s as %s\n", *server, *userID)
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *server, *userID, *peerID, token); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, server, userID, peerID, token string) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	api := client.New(server, token, logger)

	tr := transport.New(server, token, logger)
	var roomTransport session.RoomTransport
	if err := tr.Connect(ctx); err != nil {
		color.Yellow("realtime transport unavailable, running REST-only: %v", err)
		tr.Close()
	} else {
		roomTransport = tr
		defer tr.Close()
	}

	ctrl := session.NewController(userID, api, roomTransport, session.Options{Logger: logger})
	defer ctrl.Close()

	if peerID != "" {
		if err := openConversation(ctx, ctrl, userID, peerID); err != nil {
			fmt.Printf("[error] %v\n", err)
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if conv := ctrl.Active(); conv != nil {
			fmt.Printf("[%s]> ", conv.Counterpart)
		} else {
			fmt.Print("> ")
		}

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if input == "/conversations" {
			if err := listConversations(ctx, api, userID); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			fmt.Println()
			continue
		}

		if strings.HasPrefix(input, "/open") {
			peer := strings.TrimSpace(strings.TrimPrefix(input, "/open"))
			if peer == "" {
				fmt.Println("Usage: /open <user_id>")
			} else if err := openConversation(ctx, ctrl, userID, peer); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			fmt.Println()
			continue
		}

		if input == "/retry" {
			if err := retryLastFailed(ctx, ctrl.Active()); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			fmt.Println()
			continue
		}

		if input == "/help" {
			printHelp()
			fmt.Println()
			continue
		}

		conv := ctrl.Active()
		if conv == nil {
			fmt.Println("No open conversation. Use /open <user_id> first.")
			fmt.Println()
			continue
		}

		if _, err := conv.Composer.Send(ctx, input); err != nil {
			switch {
			case errors.Is(err, session.ErrSendInFlight):
				fmt.Println("[busy] previous send still in flight")
			case errors.Is(err, session.ErrSendFailed):
				color.Red("[failed] %v (use /retry)", err)
			default:
				fmt.Printf("[error] %v\n", err)
			}
		}
	}
}

// printHelp displays available commands.
func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /conversations   List your conversations")
	fmt.Println("  /open <user_id>  Open the conversation with a user")
	fmt.Println("  /retry           Retry the most recent failed send")
	fmt.Println("  /help            Show this help")
	fmt.Println("  /quit            Exit the TUI")
}

func openConversation(ctx context.Context, ctrl *session.Controller, userID, peerID string) error {
	conv, err := ctrl.Open(ctx, session.Target{UserID: peerID})
	if err != nil {
		return err
	}

	for _, m := range conv.Reconciler.Messages() {
		printMessage(userID, m)
	}

	conv.Reconciler.OnAppend(func(m chat.Message) {
		if m.SenderID == userID {
			return
		}
		fmt.Println()
		printMessage(userID, m)
		fmt.Printf("[%s]> ", conv.Counterpart)
	})

	return nil
}

func printMessage(userID string, m chat.Message) {
	ts := m.CreatedAt.Local().Format("15:04")
	who := m.SenderID
	line := color.New(color.FgCyan)
	if m.SenderID == userID {
		who = "you"
		line = color.New(color.FgGreen)
	}

	body := m.Body
	if m.Kind == chat.KindAttachment && m.Attachment != nil {
		body = fmt.Sprintf("[%s] %s", m.Attachment.Title, m.Attachment.Summary)
	}

	suffix := ""
	switch m.State {
	case chat.StatePending:
		suffix = " …"
	case chat.StateFailed:
		suffix = " ✗"
	}

	line.Printf("  %s %s: ", ts, who)
	fmt.Printf("%s%s\n", body, suffix)
}

func listConversations(ctx context.Context, api *client.Client, userID string) error {
	convs, err := api.ListConversations(ctx)
	if err != nil {
		return err
	}

	if len(convs) == 0 {
		fmt.Println("No conversations yet. Use /open <user_id> to start one.")
		return nil
	}

	fmt.Println("Conversations:")
	for _, c := range convs {
		last := "(no messages)"
		if c.LastMessageText != "" {
			last = c.LastMessageText
		}
		when := ""
		if c.LastMessageAt != nil {
			when = c.LastMessageAt.Local().Format("Jan 02 15:04")
		}
		fmt.Printf("  %-20s %s  %s\n", c.CounterpartID, last, when)
	}
	return nil
}

func retryLastFailed(ctx context.Context, conv *session.Conversation) error {
	if conv == nil {
		return fmt.Errorf("no open conversation")
	}

	msgs := conv.Reconciler.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].State == chat.StateFailed {
			_, err := conv.Composer.Retry(ctx, msgs[i].ID)
			return err
		}
	}
	return fmt.Errorf("no failed sends to retry")
}
