package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const shellHelp = `Available commands:
  register <email> <password> | register {json}
  login <email> <password>    | login {json}
  logout, me
  get <collection> [id] [?query]
  create <collection> {json}
  put <collection> <id> {json}
  patch <collection> <id> {json}
  delete <collection> <id>
  admin on|off, help, exit`

var errUsage = errors.New("usage")

// Shell is an interactive command loop over a Client.
type Shell struct {
	Client *Client
	In     io.Reader
	Out    io.Writer
}

// Run reads commands until exit, end of input or ctx is done.
func (s *Shell) Run(ctx context.Context) {
	scanner := bufio.NewScanner(s.In)
	for {
		fmt.Fprint(s.Out, "practice> ")
		if ctx.Err() != nil || !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" {
			fmt.Fprintln(s.Out, "Bye")
			return
		}
		if err := s.Exec(ctx, line); err != nil {
			fmt.Fprintln(s.Out, "error:", err)
		}
	}
}

// Exec runs a single command line and prints its result.
func (s *Shell) Exec(ctx context.Context, line string) error {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	var (
		out any
		err error
	)
	switch cmd {
	case "help":
		fmt.Fprintln(s.Out, shellHelp)
		return nil
	case "register", "login":
		body, perr := credentials(rest)
		if perr != nil {
			return perr
		}
		if cmd == "register" {
			out, err = s.Client.Register(ctx, body)
		} else {
			out, err = s.Client.Login(ctx, body)
		}
	case "logout":
		if err = s.Client.Logout(ctx); err == nil {
			fmt.Fprintln(s.Out, "Logged out")
			return nil
		}
	case "me":
		out, err = s.Client.Me(ctx)
	case "get":
		out, err = s.get(ctx, rest)
	case "create":
		collection, body, perr := splitBody(rest, 1)
		if perr != nil {
			return fmt.Errorf("%w: create <collection> {json}", perr)
		}
		out, err = s.Client.Create(ctx, collection[0], body)
	case "put", "patch":
		args, body, perr := splitBody(rest, 2)
		if perr != nil {
			return fmt.Errorf("%w: %s <collection> <id> {json}", perr, cmd)
		}
		if cmd == "put" {
			out, err = s.Client.Replace(ctx, args[0], args[1], body)
		} else {
			out, err = s.Client.Patch(ctx, args[0], args[1], body)
		}
	case "delete":
		args := strings.Fields(rest)
		if len(args) != 2 {
			return fmt.Errorf("%w: delete <collection> <id>", errUsage)
		}
		out, err = s.Client.Delete(ctx, args[0], args[1])
	case "admin":
		s.Client.Admin = rest == "on"
		fmt.Fprintf(s.Out, "Admin mode: %v\n", s.Client.Admin)
		return nil
	default:
		return fmt.Errorf("unknown command %q, type 'help' for a list of commands", cmd)
	}
	if err != nil {
		return err
	}
	return s.print(out)
}

func (s *Shell) get(ctx context.Context, rest string) (any, error) {
	var collection, id, query string
	for _, arg := range strings.Fields(rest) {
		switch {
		case strings.HasPrefix(arg, "?"):
			query = arg
		case collection == "":
			collection = arg
		case id == "":
			id = arg
		}
	}
	if collection == "" {
		return nil, fmt.Errorf("%w: get <collection> [id] [?query]", errUsage)
	}
	return s.Client.Get(ctx, collection, id, query)
}

func (s *Shell) print(v any) error {
	if v == nil {
		fmt.Fprintln(s.Out, "(no content)")
		return nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(s.Out, string(b))
	return nil
}

// credentials accepts a JSON object or "<email> <password>".
func credentials(rest string) (map[string]any, error) {
	if strings.HasPrefix(rest, "{") {
		return parseObject(rest)
	}
	args := strings.Fields(rest)
	if len(args) != 2 {
		return nil, fmt.Errorf("%w: <email> <password> or {json}", errUsage)
	}
	return map[string]any{"email": args[0], "password": args[1]}, nil
}

// splitBody takes n words followed by a JSON object.
func splitBody(rest string, n int) ([]string, map[string]any, error) {
	idx := strings.Index(rest, "{")
	if idx < 0 {
		return nil, nil, errUsage
	}
	args := strings.Fields(rest[:idx])
	if len(args) != n {
		return nil, nil, errUsage
	}
	body, err := parseObject(rest[idx:])
	if err != nil {
		return nil, nil, err
	}
	return args, body, nil
}

func parseObject(s string) (map[string]any, error) {
	var body map[string]any
	if err := json.Unmarshal([]byte(s), &body); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return body, nil
}
