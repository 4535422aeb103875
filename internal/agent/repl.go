package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/giantswarm/mcp-token-debug/internal/inspect"
)

// errExit is a sentinel error used to signal REPL exit
var errExit = errors.New("exit")

// REPL lets the user talk to the agent. Lines that are not commands are prompts.
type REPL struct {
	orchestrator    *Orchestrator
	capabilities    *CapabilitySet
	token           AccessToken
	logger          *Logger
	out             io.Writer
	commandHandlers map[string]commandHandler
}

// NewREPL creates a new REPL instance
func NewREPL(orchestrator *Orchestrator, capabilities *CapabilitySet, token AccessToken, logger *Logger) *REPL {
	r := &REPL{
		orchestrator: orchestrator,
		capabilities: capabilities,
		token:        token,
		logger:       orDiscard(logger),
		out:          os.Stdout,
	}
	r.commandHandlers = r.buildCommandHandlers()
	return r
}

// Run starts the REPL
func (r *REPL) Run(ctx context.Context) error {
	historyFile := filepath.Join(os.TempDir(), ".mcp_token_debug_history")

	config := &readline.Config{
		Prompt:          "You> ",
		HistoryFile:     historyFile,
		AutoComplete:    r.createCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	}

	rl, err := readline.NewEx(config)
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer func() { _ = rl.Close() }()
	r.out = rl.Stdout()

	// Log lines go through readline so they do not clobber the prompt.
	prevWriter := r.logger.SetWriter(rl.Stdout())
	defer r.logger.SetWriter(prevWriter)

	r.logger.Info("%s is ready. Type 'help' for available commands, anything else is sent to the agent.", r.orchestrator.Name())
	fmt.Fprintln(r.out)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("REPL shutting down...")
			return nil
		default:
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				continue
			}
		} else if err == io.EOF {
			r.logger.Info("Goodbye!")
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if err := r.executeCommand(ctx, input); err != nil {
			if errors.Is(err, errExit) {
				r.logger.Info("Goodbye!")
				return nil
			}
			r.logger.Error("Error: %v", err)
		}

		fmt.Fprintln(r.out)
	}
}

// createCompleter creates the tab completion configuration
func (r *REPL) createCompleter() *readline.PrefixCompleter {
	caps := r.capabilities.List()
	toolItems := make([]readline.PrefixCompleterInterface, len(caps))
	for i, c := range caps {
		toolItems[i] = readline.PcItem(c.Name())
	}

	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("?"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
		readline.PcItem("tools"),
		readline.PcItem("token"),
		readline.PcItem("reset"),
		readline.PcItem("verbose", readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem("call", toolItems...),
	)
}

// filterInput filters input characters for readline
func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

// commandHandler defines a REPL command with its handler and argument requirements
type commandHandler struct {
	minArgs int
	usage   string
	handler func(ctx context.Context, parts []string) error
}

// buildCommandHandlers creates the map of command handlers
func (r *REPL) buildCommandHandlers() map[string]commandHandler {
	return map[string]commandHandler{
		"help": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return r.showHelp()
		}},
		"?": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return r.showHelp()
		}},
		"exit": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return errExit
		}},
		"quit": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return errExit
		}},
		"tools": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return r.listTools()
		}},
		"token": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return r.showToken()
		}},
		"reset": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			r.orchestrator.Reset()
			fmt.Fprintln(r.out, "Conversation cleared.")
			return nil
		}},
		"verbose": {
			minArgs: 2,
			usage:   "usage: verbose on|off",
			handler: func(ctx context.Context, parts []string) error {
				return r.setVerbose(parts[1])
			},
		},
		"call": {
			minArgs: 2,
			usage:   "usage: call <tool-name>",
			handler: func(ctx context.Context, parts []string) error {
				return r.handleCallTool(ctx, parts[1])
			},
		},
	}
}

// executeCommand runs a command, or sends the input to the agent
func (r *REPL) executeCommand(ctx context.Context, input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	handler, exists := r.commandHandlers[strings.ToLower(parts[0])]
	if !exists || (len(parts) > 1 && handler.minArgs == 1) {
		return r.handlePrompt(ctx, input)
	}

	if len(parts) < handler.minArgs {
		return errors.New(handler.usage)
	}

	return handler.handler(ctx, parts)
}

// showHelp displays available commands
func (r *REPL) showHelp() error {
	fmt.Fprintln(r.out, "Available commands:")
	fmt.Fprintln(r.out, "  help, ?                      - Show this help message")
	fmt.Fprintln(r.out, "  tools                        - List the tools the agent can call")
	fmt.Fprintln(r.out, "  call <tool>                  - Call a tool directly, bypassing the model")
	fmt.Fprintln(r.out, "  token                        - Show the decoded claims of the captured token")
	fmt.Fprintln(r.out, "  reset                        - Start a new conversation")
	fmt.Fprintln(r.out, "  verbose on|off               - Toggle verbose logging")
	fmt.Fprintln(r.out, "  exit, quit                   - Exit the REPL")
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Anything else is sent to the agent, for example:")
	fmt.Fprintf(r.out, "  %s\n", DefaultPrompt)
	return nil
}

func (r *REPL) listTools() error {
	caps := r.capabilities.List()
	if len(caps) == 0 {
		fmt.Fprintln(r.out, "No tools registered.")
		return nil
	}
	fmt.Fprintf(r.out, "Tools (%d):\n", len(caps))
	for _, c := range caps {
		fmt.Fprintf(r.out, "  %-24s %s\n", c.Name(), c.Description())
	}
	return nil
}

func (r *REPL) showToken() error {
	fmt.Fprintf(r.out, "Account: %s\n", r.token.Account)
	if !r.token.ExpiresOn.IsZero() {
		fmt.Fprintf(r.out, "Expires: %s\n", r.token.ExpiresOn)
	}

	claims, err := inspect.Decode(r.token.Value)
	if err != nil {
		fmt.Fprintf(r.out, "Decoded: %v\n", err)
		return nil
	}
	fmt.Fprintf(r.out, "Decoded:\n%s\n", claims)
	return nil
}

func (r *REPL) setVerbose(mode string) error {
	switch strings.ToLower(mode) {
	case "on":
		r.logger.SetVerbose(true)
	case "off":
		r.logger.SetVerbose(false)
	default:
		return fmt.Errorf("usage: verbose on|off")
	}
	fmt.Fprintf(r.out, "Verbose logging %s.\n", strings.ToLower(mode))
	return nil
}

func (r *REPL) handleCallTool(ctx context.Context, name string) error {
	result, err := r.capabilities.Invoke(ctx, name, nil)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, result)
	return nil
}

func (r *REPL) handlePrompt(ctx context.Context, prompt string) error {
	answer, err := r.orchestrator.Run(ctx, prompt)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s> %s\n", r.orchestrator.Name(), answer)
	return nil
}
