package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Command string

const (
	CommandServe            Command = "serve"
	CommandStatus           Command = "status"
	CommandStop             Command = "stop"
	CommandProcess          Command = "process"
	CommandRescue           Command = "rescue"
	CommandRegisterCommands Command = "register-commands"
	CommandHistory          Command = "history"
	CommandDoctor           Command = "doctor"
	CommandVersion          Command = "version"
	CommandHelp             Command = "help"
)

// arity is the minimum and maximum positional argument count per command.
type arity struct{ min, max int }

var validCommands = map[Command]arity{
	CommandServe:            {0, 0},
	CommandStatus:           {0, 0},
	CommandStop:             {0, 1},
	CommandProcess:          {1, 1},
	CommandRescue:           {1, 1},
	CommandRegisterCommands: {0, 1},
	CommandHistory:          {0, 1},
	CommandDoctor:           {0, 0},
	CommandVersion:          {0, 0},
	CommandHelp:             {0, 0},
}

// DefaultHistoryLimit is the row count `history` prints without an argument.
const DefaultHistoryLimit = 20

type Parsed struct {
	Command    Command
	Args       []string
	ConfigPath string
	ShowHelp   bool
}

// Arg returns the first positional argument or "".
func (p Parsed) Arg() string {
	if len(p.Args) == 0 {
		return ""
	}
	return p.Args[0]
}

// HistoryLimit parses the optional `history N` argument.
func (p Parsed) HistoryLimit() (int, error) {
	if p.Arg() == "" {
		return DefaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(p.Arg())
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("history limit must be a positive integer, got %q", p.Arg())
	}
	return n, nil
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			bounds, ok := validCommands[cmd]
			if !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			rest := args[i+1:]
			for _, extra := range rest {
				if strings.HasPrefix(extra, "-") {
					return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
				}
			}
			if len(rest) > bounds.max {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
			if len(rest) < bounds.min {
				return Parsed{}, fmt.Errorf("command %q requires an argument", arg)
			}

			parsed.Command = cmd
			parsed.Args = append([]string(nil), rest...)
			parsed.ShowHelp = cmd == CommandHelp
			return parsed, nil
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [ARG]

Commands:
  serve                     Run the recording daemon
  status                    Print live sessions and recording identities
  stop [CHANNEL_ID]         Stop one recording, or every recording
  process DIR               Rebuild a transcript from a session directory
  rescue FILE               Transcribe one archived audio file
  register-commands [GUILD] Register slash commands (globally without GUILD)
  history [N]               Show the N most recent sessions (default 20)
  doctor                    Run configuration and environment checks
  version                   Print version information
  help                      Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/huddle/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
