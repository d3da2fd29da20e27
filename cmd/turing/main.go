/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
turing is the interactive client of the Turing collaborative editor.

Usage:

	turing [flags]                    # interactive shell
	turing [flags] register <user>    # run one command and exit

Inside the shell every line is a command, optionally prefixed by "turing":

	turing login alice
	turing create report 3
	turing edit report 0              # downloads the section to a local file
	turing end-edit report 0          # uploads the local file

Sections being edited live under --dir as <user>/<document>/<section>.txt.
Invites pushed by the server while logged in are printed as they arrive.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"turing/internal/client"
	"turing/internal/discovery"
	terrors "turing/internal/errors"
	"turing/internal/logging"
	"turing/internal/protocol"
	"turing/internal/server"
	"turing/pkg/cli"
)

const version = "1.0.0"

type options struct {
	addr    string
	regAddr string
	dir     string
	format  cli.OutputFormat
}

func main() {
	addr := flag.String("server", "localhost:5000", "server address")
	regAddr := flag.String("registration", "", "registration side channel address, empty to register over the main connection")
	dir := flag.String("dir", "turing-files", "directory for sections being edited")
	format := flag.String("format", "table", "list output: table, json or plain")
	discover := flag.Bool("discover", false, "find a server over mDNS instead of --server")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("turing %s (protocol %s)\n", version, protocol.Version)
		return
	}
	// The shell reports errors itself; library logs would garble the prompt.
	logging.SetGlobalLevel(logging.ERROR)

	opts := options{addr: *addr, regAddr: *regAddr, dir: *dir, format: cli.ParseOutputFormat(*format)}
	if *discover {
		if err := discoverServer(&opts); err != nil {
			cli.FromError(err).Exit()
		}
	}

	if flag.NArg() > 0 {
		if err := runOnce(opts, flag.Args()); err != nil {
			cli.FromError(err).Exit()
		}
		return
	}
	if err := runShell(opts); err != nil {
		cli.FromError(err).Exit()
	}
}

func discoverServer(opts *options) error {
	var servers []*discovery.Server
	err := cli.NewSpinner("Looking for a Turing server").Run(func() (err error) {
		servers, err = discovery.Discover(3*time.Second, protocol.Version)
		return err
	})
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		return cli.NewCLIError("No Turing server found on the local network").
			WithSuggestion("start one with turing-server --discovery, or pass --server")
	}
	opts.addr = servers[0].Addr
	if servers[0].RegistrationAddr != "" && opts.regAddr == "" {
		opts.regAddr = servers[0].RegistrationAddr
	}
	cli.PrintInfo("using %s on %s", servers[0].Host, opts.addr)
	return nil
}

// runOnce executes one command on a fresh connection.
func runOnce(opts options, args []string) error {
	s, err := newShell(opts, nil)
	if err != nil {
		return err
	}
	defer s.close()
	_, err = s.execute(context.Background(), args)
	return err
}

func runShell(opts options) error {
	home, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cli.Highlight("turing> "),
		HistoryFile:     filepath.Join(home, ".turing_history"),
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	cli.Stdout = rl.Stdout()

	s, err := newShell(opts, rl)
	if err != nil {
		return err
	}
	defer s.close()

	cli.LineEditor = func(prompt string) (string, error) {
		rl.SetPrompt(prompt)
		defer rl.SetPrompt(s.prompt())
		return rl.Readline()
	}
	defer func() { cli.LineEditor = nil }()

	cli.PrintSuccess("connected to %s, type help for commands", opts.addr)
	ctx := context.Background()
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				s.exit()
				return nil
			}
			continue
		}
		if err != nil {
			s.exit()
			return nil
		}

		args := strings.Fields(line)
		if len(args) > 0 && args[0] == "turing" {
			args = args[1:]
		}
		if len(args) == 0 {
			continue
		}
		quit, err := s.execute(ctx, args)
		if err != nil {
			if fatal(err) {
				return cli.ErrConnectionFailed(opts.addr, err)
			}
			cli.FromError(err).Print()
		}
		if quit {
			return nil
		}
		rl.SetPrompt(s.prompt())
	}
}

// fatal reports whether err broke the connection.
func fatal(err error) bool {
	var te *terrors.Error
	var ce *cli.CLIError
	return !errors.As(err, &te) && !errors.As(err, &ce)
}

func completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(server.Usages))
	for _, u := range server.Usages {
		items = append(items, readline.PcItem(u.Verb))
	}
	return readline.NewPrefixCompleter(items...)
}

func printUsage() {
	h := cli.NewHelpFormatter("turing", version, "collaborative document editing client")
	for _, c := range usages() {
		h.AddCommand(c)
	}
	flag.VisitAll(func(f *flag.Flag) {
		h.AddFlag(cli.Flag{Name: f.Name, Description: f.Usage, Default: f.DefValue})
	})
	h.PrintUsage()
}

// argInt parses a numeric argument.
func argInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, cli.NewCLIError(fmt.Sprintf("Not a number: %s", s))
	}
	return n, nil
}

func usages() []cli.Command {
	out := make([]cli.Command, 0, len(server.Usages))
	for _, u := range server.Usages {
		out = append(out, cli.Command{Name: u.Verb, Args: u.Args, Description: u.Description})
	}
	return out
}
