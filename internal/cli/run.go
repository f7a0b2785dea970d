package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/authorize"
	"github.com/wardenhq/warden/internal/command"
	"github.com/wardenhq/warden/internal/transport"
)

// tokenTTL is the lifetime of tokens minted for a single invocation.
const tokenTTL = 5 * time.Minute

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "run <command>",
		Short:     "Run a privileged command through the worker",
		Long:      runLongHelp(),
		Args:      cobra.ExactArgs(1),
		ValidArgs: commandNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			name := command.Name(args[0])
			binding, err := command.Lookup(name)
			if err != nil {
				return fmt.Errorf("%q is not a known command (known: %s)",
					name, strings.Join(commandNames(), ", "))
			}

			req := command.Request{Command: name}
			if binding.RequiresAuth {
				token, err := mintToken(cfg.AuthoritySeedPath)
				if err != nil {
					return err
				}
				req.Authorization = token
			}

			var reply command.Reply
			if err := newClient(cfg).Call(cmd.Context(), transport.RouteRunCommand, &req, &reply); err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(reply)
			}

			if reply.Stdout != nil {
				fmt.Println(*reply.Stdout)
			}
			if reply.Stderr != nil {
				fmt.Fprintln(os.Stderr, *reply.Stderr)
			}
			if reply.ExitCode != 0 {
				fmt.Fprintf(os.Stderr, "command exited with status %d\n", reply.ExitCode)
				os.Exit(reply.ExitCode)
			}
			return nil
		},
	}
}

// mintToken obtains an authorization token granting every command right.
// The worker checks the specific right it needs; the full grant set keeps
// one token usable across this process's lifetime.
func mintToken(seedPath string) ([]byte, error) {
	if seedPath == "" {
		return nil, fmt.Errorf("this command requires authorization: set authority_seed_path in the config (see wardenctl keygen)")
	}
	kp, err := authorize.LoadSeed(seedPath)
	if err != nil {
		return nil, fmt.Errorf("loading authority seed: %w", err)
	}
	return authorize.NewTokenSource(kp, command.Rights(), tokenTTL).Token()
}

func commandNames() []string {
	names := make([]string, 0, len(command.Commands()))
	for _, n := range command.Commands() {
		names = append(names, string(n))
	}
	return names
}

// runLongHelp lists the closed command set with authorization markers.
func runLongHelp() string {
	var b strings.Builder
	b.WriteString("Run dispatches one command from the worker's closed set. The worker\n")
	b.WriteString("never accepts paths or arguments from callers; a name selects a fixed\n")
	b.WriteString("binding or nothing runs.\n\nCommands:\n")
	for _, name := range command.Commands() {
		binding, err := command.Lookup(name)
		if err != nil {
			continue
		}
		marker := ""
		if binding.RequiresAuth {
			marker = " (requires authorization)"
		}
		fmt.Fprintf(&b, "  %-18s %s %s%s\n", name, binding.Path, strings.Join(binding.Args, " "), marker)
	}
	return strings.TrimRight(b.String(), "\n")
}
