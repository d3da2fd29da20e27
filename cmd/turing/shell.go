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

package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"turing/internal/client"
	"turing/internal/protocol"
	"turing/pkg/cli"
)

// shell holds one primary connection and the session state of the user.
type shell struct {
	opts  options
	rl    *readline.Instance
	c     *client.Client
	files *client.LocalFiles

	// editing is the section checked out with edit, if any.
	editing string
	// lastUser is offered when login is run without a name.
	lastUser string

	invites  context.CancelFunc
	invitesW sync.WaitGroup
}

type command struct {
	min, max int
	run      func(ctx context.Context, args []string) (quit bool, err error)
}

func newShell(opts options, rl *readline.Instance) (*shell, error) {
	c, err := client.Dial(context.Background(), opts.addr)
	if err != nil {
		return nil, cli.ErrConnectionFailed(opts.addr, err)
	}
	return &shell{opts: opts, rl: rl, c: c, files: client.NewLocalFiles(opts.dir)}, nil
}

func (s *shell) prompt() string {
	switch {
	case s.c.User() == "":
		return cli.Highlight("turing> ")
	case s.editing != "":
		return cli.Highlight(fmt.Sprintf("turing %s@%s> ", s.c.User(), s.editing))
	default:
		return cli.Highlight(fmt.Sprintf("turing %s> ", s.c.User()))
	}
}

func (s *shell) commands() map[string]command {
	return map[string]command{
		"help":     {0, 1, s.help},
		"register": {0, 2, s.register},
		"login":    {0, 2, s.login},
		"logout":   {0, 0, s.logout},
		"create":   {2, 2, s.create},
		"share":    {2, 2, s.share},
		"show":     {1, 2, s.show},
		"list":     {0, 0, s.list},
		"edit":     {2, 2, s.edit},
		"end-edit": {2, 2, s.endEdit},
		"send":     {1, -1, s.send},
		"receive":  {0, 0, s.receive},
		"exit":     {0, 0, s.quit},

		"show-document": {1, 1, s.show},
		"show-section":  {2, 2, s.show},
	}
}

// execute runs one command line and reports whether the shell should end.
// Protocol verbs are accepted in any case and with underscores.
func (s *shell) execute(ctx context.Context, args []string) (bool, error) {
	verb := strings.ToLower(args[0])
	if c, ok := protocol.ParseCommand(verb); ok {
		verb = c.String()
	}
	cmd, ok := s.commands()[verb]
	if !ok {
		return false, cli.ErrUnknownCommand(verb)
	}
	n := len(args) - 1
	if n < cmd.min || (cmd.max >= 0 && n > cmd.max) {
		return false, cli.ErrUsage(usageOf(verb))
	}
	return cmd.run(ctx, args[1:])
}

func usageOf(verb string) string {
	for _, u := range usages() {
		if u.Name == verb {
			return u.Usage()
		}
	}
	return verb
}

// credentials returns the username and password from args, prompting for
// what is missing.
func (s *shell) credentials(args []string) (string, string, error) {
	if len(args) == 0 {
		name := s.lastUser
		if name == "" {
			name = os.Getenv("USER")
		}
		args = []string{cli.PromptWithDefault("Username", name)}
		if args[0] == "" {
			return "", "", cli.ErrUsage(usageOf("login"))
		}
	}
	pw, err := s.password(args)
	return args[0], pw, err
}

// confirmLeave asks before abandoning a section that is checked out.
func (s *shell) confirmLeave() bool {
	if s.editing == "" || s.rl == nil {
		return true
	}
	cli.PrintWarning("%s is still being edited; leaving releases it without uploading", s.editing)
	return cli.PromptYesNo("Leave anyway?", false)
}

func (s *shell) password(args []string) (string, error) {
	if len(args) > 1 {
		return args[1], nil
	}
	if s.rl != nil {
		pw, err := s.rl.ReadPassword("Password: ")
		return string(pw), err
	}
	return cli.PromptPassword("Password")
}

func (s *shell) help(_ context.Context, args []string) (bool, error) {
	if len(args) == 1 {
		h := cli.NewHelpFormatter("turing", version, "")
		for _, c := range usages() {
			h.AddCommand(c)
		}
		h.PrintCommandHelp(args[0])
		return false, nil
	}
	lines, err := s.c.Help()
	if err != nil {
		return false, err
	}
	for _, l := range lines {
		fmt.Fprintln(cli.Stdout, "  "+l)
	}
	return false, nil
}

func (s *shell) register(ctx context.Context, args []string) (bool, error) {
	user, pw, err := s.credentials(args)
	if err != nil {
		return false, err
	}
	if s.opts.regAddr != "" {
		err = client.RegisterVia(ctx, s.opts.regAddr, user, pw)
	} else {
		err = s.c.Register(user, pw)
	}
	if err != nil {
		return false, err
	}
	s.lastUser = user
	cli.PrintSuccess("registered %s", cli.User(user))
	return false, nil
}

func (s *shell) login(_ context.Context, args []string) (bool, error) {
	user, pw, err := s.credentials(args)
	if err != nil {
		return false, err
	}
	res, err := s.c.Login(user, pw)
	if err != nil {
		return false, err
	}
	s.lastUser = user
	cli.PrintSuccess("logged in as %s", cli.User(user))
	for _, doc := range res.Invites {
		cli.PrintInfo("you were invited to %s while offline", cli.Document(doc))
	}
	s.listen(user, res.Token)
	return false, nil
}

// listen prints invites pushed for the session until logout.
func (s *shell) listen(user, token string) {
	ctx, cancel := context.WithCancel(context.Background())
	s.invites = cancel
	l := client.NewInviteListener(s.c.Addr(), user, token)
	s.invitesW.Add(1)
	go func() {
		defer s.invitesW.Done()
		err := l.Listen(ctx, func(inv client.Invite) {
			cli.PrintInfo("%s shared %s with you", cli.User(inv.Inviter), cli.Document(inv.Document))
		})
		if err != nil && ctx.Err() == nil {
			cli.PrintWarning("invite notifications stopped: %v", err)
		}
	}()
}

func (s *shell) stopListening() {
	if s.invites != nil {
		s.invites()
		s.invitesW.Wait()
		s.invites = nil
	}
}

func (s *shell) logout(context.Context, []string) (bool, error) {
	if !s.confirmLeave() {
		return false, nil
	}
	if err := s.c.Logout(); err != nil {
		return false, err
	}
	s.stopListening()
	s.editing = ""
	cli.PrintSuccess("logged out")
	return false, nil
}

func (s *shell) create(_ context.Context, args []string) (bool, error) {
	n, err := argInt(args[1])
	if err != nil {
		return false, err
	}
	addr, err := s.c.Create(args[0], n)
	if err != nil {
		return false, err
	}
	if err := s.files.CreateDirectory(s.c.User(), args[0]); err != nil {
		cli.PrintWarning("local directory: %v", err)
	}
	cli.PrintSuccess("created %s with %d sections, chat on %s", cli.Document(args[0]), n, addr)
	return false, nil
}

func (s *shell) share(_ context.Context, args []string) (bool, error) {
	if err := s.c.Share(args[0], args[1]); err != nil {
		return false, err
	}
	cli.PrintSuccess("shared %s with %s", cli.Document(args[0]), cli.User(args[1]))
	return false, nil
}

func (s *shell) show(_ context.Context, args []string) (bool, error) {
	if len(args) == 2 {
		i, err := argInt(args[1])
		if err != nil {
			return false, err
		}
		sec, err := s.c.ShowSection(args[0], i)
		if err != nil {
			return false, err
		}
		printSection(args[0], i, sec)
		return false, nil
	}
	sections, err := s.c.ShowDocument(args[0])
	if err != nil {
		return false, err
	}
	for i, sec := range sections {
		printSection(args[0], i, sec)
	}
	return false, nil
}

func printSection(doc string, i int, sec client.Section) {
	title := fmt.Sprintf("%s #%d", doc, i)
	if sec.Editor != "" {
		title += " " + cli.Warning("(being edited by "+sec.Editor+")")
	}
	content := string(sec.Content)
	if content == "" {
		content = cli.Dimmed("(empty)")
	}
	cli.Block(title, content)
}

func (s *shell) list(context.Context, []string) (bool, error) {
	docs, err := s.c.List()
	if err != nil {
		return false, err
	}
	table := cli.NewTable("Document", "Creator", "Sections", "Collaborators")
	table.SetFormat(s.opts.format)
	for _, d := range docs {
		collab := append([]string(nil), d.Collaborators...)
		sort.Strings(collab)
		table.AddRow(d.Name, d.Creator, strconv.Itoa(d.Sections), strings.Join(collab, ", "))
	}
	table.Print()
	return false, nil
}

func (s *shell) edit(_ context.Context, args []string) (bool, error) {
	i, err := argInt(args[1])
	if err != nil {
		return false, err
	}
	res, err := s.c.Edit(args[0], i)
	if err != nil {
		return false, err
	}
	user := s.c.User()
	if err := s.files.WriteSection(user, args[0], i, res.Content); err != nil {
		return false, cli.NewCLIError("Section locked but not saved locally").
			WithDetail(err.Error()).
			WithSuggestion(fmt.Sprintf("release it with: end-edit %s %d", args[0], i))
	}
	s.editing = fmt.Sprintf("%s#%d", args[0], i)
	cli.PrintSuccess("editing %s, chat on %s", s.editing, res.Address)
	cli.PrintInfo("edit %s, then run end-edit %s %d", s.files.Path(user, args[0], i), args[0], i)
	return false, nil
}

func (s *shell) endEdit(_ context.Context, args []string) (bool, error) {
	i, err := argInt(args[1])
	if err != nil {
		return false, err
	}
	user := s.c.User()
	body, err := s.files.ReadSection(user, args[0], i)
	if err != nil {
		return false, cli.NewCLIError("Nothing to upload").WithDetail(err.Error())
	}
	if err := s.c.EndEdit(args[0], i, body); err != nil {
		return false, err
	}
	s.editing = ""
	if err := s.files.DeleteSection(user, args[0], i); err != nil {
		cli.PrintWarning("local copy kept: %v", err)
	}
	cli.PrintSuccess("uploaded %s #%d (%d bytes)", cli.Document(args[0]), i, len(body))
	return false, nil
}

func (s *shell) send(_ context.Context, args []string) (bool, error) {
	if err := s.c.Send(strings.Join(args, " ")); err != nil {
		return false, err
	}
	return false, nil
}

func (s *shell) receive(context.Context, []string) (bool, error) {
	msgs, err := s.c.Receive()
	if err != nil {
		return false, err
	}
	if len(msgs) == 0 {
		fmt.Fprintln(cli.Stdout, cli.Dimmed("(no new messages)"))
	}
	for _, m := range msgs {
		fmt.Fprintln(cli.Stdout, m.String())
	}
	return false, nil
}

func (s *shell) quit(context.Context, []string) (bool, error) {
	if !s.confirmLeave() {
		return false, nil
	}
	return true, s.exit()
}

// exit leaves cleanly: the server logs the user out and releases any
// section still being edited.
func (s *shell) exit() error {
	s.stopListening()
	return s.c.Exit()
}

func (s *shell) close() {
	s.stopListening()
	s.c.Close()
}
