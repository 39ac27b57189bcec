package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/client/client"
	"github.com/dmitrijs2005/authkeeper/internal/client/config"
	"github.com/dmitrijs2005/authkeeper/internal/client/repositories/session"
)

type App struct {
	config *config.Config
	api    client.Client
	db     *sql.DB
	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the local session file and connects to the server.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	db, err := client.OpenSessionDB(ctx, c.SessionFile)
	if err != nil {
		return nil, fmt.Errorf("error opening session file: %w", err)
	}

	store := client.NewSessionStore(session.NewSQLiteRepository(db))

	api, err := client.NewGRPCClient(ctx, c.ServerEndpointAddr, store)
	if err != nil {
		db.Close()
		return nil, err
	}

	return newApp(c, api, db, os.Stdin, os.Stdout), nil
}

func newApp(c *config.Config, api client.Client, db *sql.DB, in io.Reader, out io.Writer) *App {
	return &App{config: c, api: api, db: db, reader: bufio.NewReader(in), out: out}
}

// Close closes the connection and the session file.
func (a *App) Close() error {
	err := a.api.Close()
	if a.db != nil {
		if cerr := a.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Run executes the subcommand in args, or starts the REPL when args is empty.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "authkeeper CLI (type 'help' for commands)")
		runREPL(ctx, a, a.out, a.reader)
		return nil
	}
	return a.exec(ctx, args[0])
}

func (a *App) exec(ctx context.Context, cmd string) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.RequestTimeout)
	defer cancel()

	switch strings.ToLower(cmd) {
	case "register":
		return a.Register(ctx)
	case "login":
		return a.Login(ctx)
	case "me", "whoami":
		return a.Me(ctx)
	case "refresh":
		return a.Refresh(ctx)
	case "logout":
		return a.Logout(ctx)
	case "ping":
		return a.Ping(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
