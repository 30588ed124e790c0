// Package app is the sample wirekit API: authentication, per-user todo
// lists, a small wiki and a plain greeting function.
package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/tendant/wirekit/internal/auth"
	apperrors "github.com/tendant/wirekit/internal/errors"
	"github.com/tendant/wirekit/internal/resource"
	"github.com/tendant/wirekit/internal/rpc"
	"github.com/tendant/wirekit/internal/store"
)

// Todo is one entry of a user's list.
type Todo struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// App holds the services behind the sample API.
type App struct {
	auth     *auth.Service
	todos    store.FileService
	wiki     store.FileService
	markdown goldmark.Markdown
	logger   *slog.Logger
}

// Option configures the App.
type Option func(*App)

// WithLogger sets the logger for the app.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// New creates the sample app in namespace, storing through factory.
func New(namespace resource.Namespace, authService *auth.Service, factory store.Factory, opts ...Option) (*App, error) {
	a := &App{
		auth:     authService,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	var err error
	if a.todos, err = factory(namespace, "userTodoApp"); err != nil {
		return nil, fmt.Errorf("opening todo storage: %w", err)
	}
	if a.wiki, err = factory(namespace, "wikiPages"); err != nil {
		return nil, fmt.Errorf("opening wiki storage: %w", err)
	}
	return a, nil
}

// API returns the root of the sample API tree.
func (a *App) API() rpc.Namespace {
	return rpc.Namespace{
		"auth":  a.auth.API(),
		"todos": rpc.WithContext(a.todosAPI),
		"wiki":  rpc.WithContext(a.wikiAPI),
		"sample": rpc.Namespace{
			"hello": rpc.Fn1(Hello),
		},
	}
}

// Hello returns a friendly, personalized greeting.
func Hello(_ context.Context, name string) (string, error) {
	return fmt.Sprintf("Oh hai, %s.", name), nil
}

func todosFile(userID string) string {
	return userID + "/todos.json"
}

func (a *App) todosAPI(c *rpc.Context) rpc.Node {
	return rpc.Namespace{
		"read": rpc.Fn0(func(ctx context.Context) ([]Todo, error) {
			user, err := a.auth.RequireCurrentUser(ctx, c.Cookies)
			if err != nil {
				return nil, err
			}
			data, err := a.todos.Read(ctx, todosFile(user.ID))
			if store.IsNotFound(err) {
				return []Todo{}, nil
			}
			if err != nil {
				return nil, err
			}
			var todos []Todo
			if err := json.Unmarshal(data, &todos); err != nil {
				a.logger.Warn("discarding unreadable todo list", "user_id", user.ID, "error", err)
				return []Todo{}, nil
			}
			return todos, nil
		}),
		"write": rpc.Fn1(func(ctx context.Context, raw json.RawMessage) (bool, error) {
			user, err := a.auth.RequireCurrentUser(ctx, c.Cookies)
			if err != nil {
				return false, err
			}
			todos, err := parseTodos(raw)
			if err != nil {
				return false, err
			}
			data, err := json.Marshal(todos)
			if err != nil {
				return false, err
			}
			if err := a.todos.Write(ctx, todosFile(user.ID), data); err != nil {
				return false, err
			}
			return true, nil
		}),
	}
}

// parseTodos accepts only an array of objects with string id and text.
// Other properties are dropped.
func parseTodos(raw json.RawMessage) ([]Todo, error) {
	invalid := apperrors.InvalidInput("Invalid todos!")

	var entries []struct {
		ID   *string `json:"id"`
		Text *string `json:"text"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &entries) != nil || entries == nil {
		return nil, invalid
	}

	todos := make([]Todo, 0, len(entries))
	for _, e := range entries {
		if e.ID == nil || e.Text == nil {
			return nil, invalid
		}
		todos = append(todos, Todo{ID: *e.ID, Text: *e.Text})
	}
	return todos, nil
}

var wikiUnsafe = regexp.MustCompile(`[^-_a-zA-Z0-9/]`)

// WikiFilename maps a page name onto its storage file.
func WikiFilename(page string) string {
	return wikiUnsafe.ReplaceAllString(page, "-") + ".md"
}

func (a *App) readPage(ctx context.Context, page string) (*string, error) {
	data, err := a.wiki.Read(ctx, WikiFilename(page))
	if store.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	content := string(data)
	return &content, nil
}

func (a *App) wikiAPI(c *rpc.Context) rpc.Node {
	return rpc.Namespace{
		"read": rpc.Fn1(a.readPage),
		"write": rpc.Fn2(func(ctx context.Context, page, content string) (bool, error) {
			if _, err := a.auth.RequireCurrentUser(ctx, c.Cookies); err != nil {
				return false, err
			}
			if err := a.wiki.Write(ctx, WikiFilename(page), []byte(content)); err != nil {
				return false, err
			}
			return true, nil
		}),
		"render": rpc.Fn1(func(ctx context.Context, page string) (*string, error) {
			content, err := a.readPage(ctx, page)
			if err != nil || content == nil {
				return nil, err
			}
			var buf bytes.Buffer
			if err := a.markdown.Convert([]byte(*content), &buf); err != nil {
				return nil, apperrors.Internal("failed to render page", err)
			}
			html := buf.String()
			return &html, nil
		}),
	}
}
