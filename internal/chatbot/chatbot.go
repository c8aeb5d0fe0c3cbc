// Package chatbot is the terminal front end: it reads queries from stdin,
// hands them to the controller, and renders history and the streaming
// partial answer. All protocol concerns live below it.
package chatbot

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/HamzaShahid59/Smart-Genk/internal/chat"
	"github.com/HamzaShahid59/Smart-Genk/internal/config"
	"github.com/HamzaShahid59/Smart-Genk/internal/controller"
	"github.com/HamzaShahid59/Smart-Genk/internal/transport"
)

// ChatBot represents the main application
type ChatBot struct {
	config     config.Config
	controller *controller.Controller
	logger     *slog.Logger

	// printed tracks how much of the current partial answer has been
	// written, so each chunk prints only its delta.
	printed int
	done    chan struct{}
}

// NewChatBot creates a new ChatBot instance wired to the given endpoint.
func NewChatBot(cfg config.Config, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *ChatBot {
	cb := &ChatBot{
		config: cfg,
		logger: logger,
		done:   make(chan struct{}, 1),
	}
	dialer := &transport.WSDialer{HandshakeTimeout: cfg.HandshakeTimeout()}
	cb.controller = controller.New(cfg, dialer, cb, logger, tracer, meter)
	return cb
}

// Run starts the interactive loop.
func (cb *ChatBot) Run() error {
	fmt.Println("=== Smart Genk ===")
	fmt.Printf("Endpoint: %s\n", cb.config.Endpoint)
	fmt.Println("Type /help for commands, /quit to exit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()

	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := cb.handleCommand(input)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				cb.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		if err := cb.controller.Submit(ctx, input); err != nil {
			fmt.Printf("Error: %v\n", err)
			cb.logger.Error("failed to submit query", "error", err)
			continue
		}

		// Input stays disabled until the session reaches a terminal
		// state; chunks stream to stdout in the meantime.
		<-cb.done
		fmt.Println()
	}

	// Routine teardown for anything still in flight (Ctrl-D mid-stream
	// cannot happen with the blocking loop above, but keep the channel
	// from dangling if that ever changes).
	cb.controller.Abort()

	fmt.Println("Goodbye!")
	return scanner.Err()
}

// handleCommand handles special commands
func (cb *ChatBot) handleCommand(cmd string) (bool, error) {
	switch strings.Fields(cmd)[0] {
	case "/quit", "/exit":
		return true, nil

	case "/history":
		if cb.controller.History().Len() == 0 {
			fmt.Println("No messages yet.")
			return false, nil
		}
		fmt.Println()
		for msg := range cb.controller.History().All() {
			fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Format("15:04:05"), roleLabel(msg.Role), msg.Content)
		}
		fmt.Println()
		return false, nil

	case "/help":
		fmt.Println("Available commands:")
		fmt.Println("  /quit, /exit - Exit the chat")
		fmt.Println("  /history     - Replay the conversation so far")
		fmt.Println("  /help        - Show this help message")
		return false, nil

	default:
		return false, nil
	}
}

func roleLabel(role chat.Role) string {
	if role == chat.RoleHuman {
		return "You"
	}
	return "Bot"
}

// PartialChanged implements controller.Notifier.
func (cb *ChatBot) PartialChanged(partial string) {
	if partial == "" {
		cb.printed = 0
		return
	}
	if cb.printed == 0 {
		fmt.Print("Bot: ")
	}
	if cb.printed <= len(partial) {
		fmt.Print(partial[cb.printed:])
	}
	cb.printed = len(partial)
}

// HistoryChanged implements controller.Notifier. Live rendering happens
// chunk by chunk; the log is replayed on demand via /history.
func (cb *ChatBot) HistoryChanged() {}

// SessionFailed implements controller.Notifier.
func (cb *ChatBot) SessionFailed(err error) {
	fmt.Printf("\nError: %v\n", err)
}

// SessionDone implements controller.Notifier.
func (cb *ChatBot) SessionDone() {
	select {
	case cb.done <- struct{}{}:
	default:
	}
}
