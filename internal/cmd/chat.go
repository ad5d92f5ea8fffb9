package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/reeflective/readline"
	"github.com/spf13/cobra"

	"github.com/inercia/adkinspect/internal/adk"
	"github.com/inercia/adkinspect/internal/inspector"
	"github.com/inercia/adkinspect/internal/logging"
	"github.com/inercia/adkinspect/internal/registry"
)

// chatSessionKey is the registry key of the terminal session.
const chatSessionKey = "cli"

var (
	// Chat-specific flags
	oncePrompt string
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive terminal chat with the agent",
	Long: `Start an interactive session with the agent service.

A remote session is created on start and ended on exit. Replies are
printed as they are rendered in the web interface; the inspector commands
print the session events, traces and graphs as JSON.

Use --once to send a single message and exit:
  adkinspect chat --once "What is the weather in Paris?"

Commands (interactive mode only):
  /events         - Show the session events
  /trace <id>     - Show the trace of an event
  /graph <id>     - Show the graph of an event
  /inspect        - Show the full inspector snapshot
  /key [value]    - Set (or clear) the API key for this session
  /new            - End the session and start a new one
  /help           - Show available commands
  /quit, /exit    - Exit`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&oncePrompt, "once", "", "Send a single message and exit (non-interactive mode)")
}

func runChat(cmd *cobra.Command, args []string) error {
	isOnceMode := oncePrompt != ""

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			if !isOnceMode {
				fmt.Println("\n\n👋 Shutting down...")
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	chat := newChatSession(reg, inspector.New(inspector.WithLogger(logging.Inspector())), os.Stdout)
	defer reg.Purge(context.WithoutCancel(ctx))

	if !isOnceMode || debug {
		fmt.Printf("🚀 Connecting to %s (app %s)\n", cfg.Agent.BaseURL, cfg.Agent.AppName)
	}
	client := chat.client(ctx)
	if !client.HasSession() {
		return fmt.Errorf("failed to create a session on %s", cfg.Agent.BaseURL)
	}
	if !isOnceMode || debug {
		fmt.Printf("   Session: %s\n", client.SessionID())
	}

	if isOnceMode {
		return chat.send(ctx, oncePrompt)
	}
	return runInteractiveLoop(ctx, chat)
}

// chatSession drives one terminal conversation through a registry entry.
type chatSession struct {
	reg  *registry.Registry
	insp *inspector.Inspector
	out  io.Writer
}

func newChatSession(reg *registry.Registry, insp *inspector.Inspector, out io.Writer) *chatSession {
	return &chatSession{reg: reg, insp: insp, out: out}
}

func (c *chatSession) client(ctx context.Context) *adk.Client {
	return c.reg.Get(ctx, chatSessionKey)
}

// send delivers one user message and prints the assistant messages.
func (c *chatSession) send(ctx context.Context, text string) error {
	client := c.client(ctx)
	if !client.HasSession() {
		fmt.Fprintln(c.out, inspector.NoSessionMessage)
		return nil
	}
	events, err := client.SendMessage(ctx, text)
	if err != nil {
		return err
	}
	for _, msg := range c.insp.ChatMessages(events) {
		if msg.Title != "" {
			fmt.Fprintf(c.out, "🔧 %s: %s\n", msg.Title, msg.Content)
			continue
		}
		fmt.Fprintln(c.out, msg.Content)
	}
	return nil
}

type slashCommand struct {
	name        string
	description string
}

// slashCommands defines the available slash commands with their descriptions.
var slashCommands = []slashCommand{
	{"/events", "Show the session events"},
	{"/trace", "Show the trace of an event"},
	{"/graph", "Show the graph of an event"},
	{"/inspect", "Show the full inspector snapshot"},
	{"/key", "Set or clear the API key for this session"},
	{"/new", "End the session and start a new one"},
	{"/help", "Show available commands"},
	{"/quit", "Exit the CLI"},
	{"/exit", "Exit the CLI (alias)"},
}

// errQuit is returned by handleCommand when the user asks to exit.
var errQuit = errors.New("quit")

// handleCommand runs one slash command. It returns errQuit on /quit.
func (c *chatSession) handleCommand(ctx context.Context, line string) error {
	parts := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(parts) == 0 {
		return nil
	}
	name := strings.ToLower(parts[0])
	args := parts[1:]

	switch name {
	case "quit", "exit", "q":
		return errQuit
	case "help", "h", "?":
		printHelp(c.out)
	case "events":
		snap, err := c.insp.EventsOnly(ctx, c.client(ctx))
		if err != nil {
			return err
		}
		c.printJSON(snap.Events())
	case "inspect":
		snap, err := c.insp.Build(ctx, c.client(ctx))
		if err != nil {
			return err
		}
		c.printJSON(snap)
	case "trace", "graph":
		if len(args) != 1 {
			fmt.Fprintf(c.out, "Usage: /%s <event-id>\n", name)
			return nil
		}
		return c.printEventPayload(ctx, name, args[0])
	case "key":
		client := c.client(ctx)
		if len(args) == 0 {
			client.SetCredentialOverride("")
			fmt.Fprintln(c.out, "🔑 API key cleared, using the default")
			return nil
		}
		client.SetCredentialOverride(args[0])
		fmt.Fprintln(c.out, "🔑 API key set for this session")
	case "new":
		c.reg.Remove(ctx, chatSessionKey)
		client := c.client(ctx)
		if !client.HasSession() {
			fmt.Fprintln(c.out, inspector.NoSessionMessage)
			return nil
		}
		fmt.Fprintf(c.out, "🆕 New session: %s\n", client.SessionID())
	default:
		fmt.Fprintf(c.out, "❓ Unknown command: %s (use /help for available commands)\n", name)
	}
	return nil
}

func (c *chatSession) printEventPayload(ctx context.Context, kind, eventID string) error {
	client := c.client(ctx)
	var (
		payload map[string]any
		err     error
	)
	if kind == "trace" {
		var trace adk.Trace
		trace, err = client.GetTrace(ctx, eventID)
		if trace != nil {
			payload = inspector.DecodeTrace(trace, nil)
		}
	} else {
		payload, err = client.GetGraph(ctx, eventID)
	}
	if err != nil {
		return err
	}
	if payload == nil {
		fmt.Fprintf(c.out, "No %s available for event %s\n", kind, eventID)
		return nil
	}
	c.printJSON(payload)
	return nil
}

func (c *chatSession) printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(c.out, "❌ Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, string(data))
}

func runInteractiveLoop(ctx context.Context, chat *chatSession) error {
	rl := readline.NewShell()
	rl.Prompt.Primary(func() string { return "adk> " })

	history := readline.NewInMemoryHistory()
	rl.History.Add("default", history)

	rl.Completer = func(line []rune, cursor int) readline.Completions {
		return completeInput(string(line), cursor)
	}

	fmt.Println("\n📝 Type your message and press Enter. Use /help for commands. Tab completes commands.")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				fmt.Println("\n👋 Goodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if err := chat.handleCommand(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					fmt.Println("👋 Goodbye!")
					return nil
				}
				printErr("%v", err)
			}
			continue
		}

		fmt.Println()
		if err := chat.send(ctx, line); err != nil {
			printErr("Error: %v", err)
		}
		fmt.Println()
	}
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, `
Available commands:
  /events           - Show the session events
  /trace <id>       - Show the trace of an event
  /graph <id>       - Show the graph of an event
  /inspect          - Show the full inspector snapshot
  /key [value]      - Set the API key for this session (no value clears it)
  /new              - End the session and start a new one
  /quit, /exit, /q  - Exit the CLI
  /help, /h, /?     - Show this help message

Tips:
  - Type your message and press Enter to send it to the agent
  - Use Ctrl+C to exit gracefully
  - Use up/down arrows for command history
  - Use Tab to autocomplete slash commands`)
}

// completeInput provides tab completion for the CLI input.
// It completes slash commands when the input starts with "/".
func completeInput(line string, cursor int) readline.Completions {
	if cursor > len(line) {
		cursor = len(line)
	}
	text := line[:cursor]

	if !strings.HasPrefix(text, "/") {
		return readline.Completions{}
	}

	pairs := make([]string, 0, len(slashCommands)*2)
	for _, cmd := range matchCommands(text) {
		pairs = append(pairs, cmd.name, cmd.description)
	}
	if len(pairs) == 0 {
		return readline.Completions{}
	}

	return readline.CompleteValuesDescribed(pairs...).
		Tag("commands").
		NoSpace('/') // Don't add space after completing partial command
}

// matchCommands returns the slash commands starting with prefix.
func matchCommands(prefix string) []slashCommand {
	var matches []slashCommand
	for _, cmd := range slashCommands {
		if strings.HasPrefix(cmd.name, prefix) {
			matches = append(matches, cmd)
		}
	}
	return matches
}
