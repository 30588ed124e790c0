package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tendant/wirekit/internal/domain"
	"github.com/tendant/wirekit/internal/rpc"
)

// session is a discovered API plus the cookies persisted for it.
type session struct {
	api        *rpc.Stub
	rc         *rpc.Context
	cookieFile string
}

func openSession(c *cli.Context) (*session, error) {
	client := rpc.NewClient(c.String("url"))
	api, err := client.Discover(c.Context)
	if err != nil {
		return nil, err
	}
	jar, err := loadJar(c.String("cookies"))
	if err != nil {
		return nil, fmt.Errorf("loading cookies: %w", err)
	}
	return &session{api: api, rc: &rpc.Context{Cookies: jar}, cookieFile: c.String("cookies")}, nil
}

func (s *session) save() error {
	if err := saveJar(s.cookieFile, s.rc.Cookies); err != nil {
		return fmt.Errorf("saving cookies: %w", err)
	}
	return nil
}

func (s *session) stub(method string) *rpc.Stub {
	node := s.api
	for _, name := range strings.Split(method, ".") {
		node = node.Get(name)
	}
	return node
}

// parseArg reads a command line argument as JSON, falling back to a plain
// string.
func parseArg(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func printJSON(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}

func describeCmd() *cli.Command {
	return &cli.Command{
		Name:  "describe",
		Usage: "List the functions the API exposes",
		Action: func(c *cli.Context) error {
			endpoints, err := rpc.NewClient(c.String("url")).Describe(c.Context)
			if err != nil {
				return err
			}
			cyan := color.New(color.FgCyan)
			yellow := color.New(color.FgYellow)
			for _, ep := range endpoints {
				cyan.Print(strings.Join(ep.Path, "."))
				if ep.RequiresContext {
					yellow.Print("  (context)")
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func callCmd() *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "Call an API function",
		ArgsUsage: "<method.path> [json args...]",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return cli.Exit("missing method", 2)
			}
			s, err := openSession(c)
			if err != nil {
				return err
			}

			args := make([]any, 0, c.NArg()-1)
			for _, a := range c.Args().Tail() {
				args = append(args, parseArg(a))
			}

			var out json.RawMessage
			callErr := s.stub(c.Args().First()).Call(c.Context, s.rc, &out, args...)
			if err := s.save(); err != nil {
				return err
			}
			if callErr != nil {
				return callErr
			}
			if len(out) == 0 {
				return nil
			}
			return printJSON(out)
		},
	}
}

func authCmd() *cli.Command {
	var username, password string
	credentialFlags := []cli.Flag{
		&cli.StringFlag{Name: "username", Aliases: []string{"n"}, Required: true, Destination: &username},
		&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Required: true, Destination: &password, EnvVars: []string{"WIRECTL_PASSWORD"}},
	}
	credentials := func(key string) domain.Input {
		return domain.Input{Key: key, Inputs: map[string]any{"username": username, "password": password}}
	}

	return &cli.Command{
		Name:  "auth",
		Usage: "Drive the authentication state machine",
		Subcommands: []*cli.Command{
			{
				Name:  "state",
				Usage: "Show the current authentication state",
				Action: func(c *cli.Context) error {
					s, err := openSession(c)
					if err != nil {
						return err
					}
					state, err := rpc.Invoke[domain.MachineState](c.Context, s.stub("auth.getState"), s.rc)
					if err != nil {
						return err
					}
					printState(&state)
					return s.save()
				},
			},
			{
				Name:  "signup",
				Usage: "Create an account and sign in",
				Flags: credentialFlags,
				Action: func(c *cli.Context) error {
					return setState(c, credentials("signup"))
				},
			},
			{
				Name:  "signin",
				Usage: "Sign in",
				Flags: credentialFlags,
				Action: func(c *cli.Context) error {
					return setState(c, credentials("signin"))
				},
			},
			{
				Name:  "signout",
				Usage: "Sign out",
				Action: func(c *cli.Context) error {
					return setState(c, domain.Input{Key: "signout"})
				},
			},
		},
	}
}

func setState(c *cli.Context, input domain.Input) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	result, err := rpc.Invoke[domain.StateResult](c.Context, s.stub("auth.setState"), s.rc, input)
	if err != nil {
		return err
	}
	if err := s.save(); err != nil {
		return err
	}

	if result.Failed() {
		for _, e := range result.Errors {
			if e.Field != "" {
				color.Red("%s: %s\n", e.Field, e.Message)
			} else {
				color.Red("%s\n", e.Message)
			}
		}
		return cli.Exit("", 1)
	}
	printState(result.MachineState)
	return nil
}

func printState(state *domain.MachineState) {
	if state == nil {
		return
	}
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	if state.User != nil {
		green.Printf("%s as %s\n", state.State, state.User.Username)
	} else {
		green.Printf("%s\n", state.State)
	}
	if state.Message != "" {
		fmt.Println(state.Message)
	}
	for _, key := range slices.Sorted(maps.Keys(state.Actions)) {
		cyan.Printf("  %-16s", key)
		fmt.Println(state.Actions[key].Name)
	}
}
