// Package admin runs one-shot account commands against the local database.
// Deliveries they cause are queued and sent by the running server.
package admin

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/stegofed/activitypub"
	"github.com/deemkeen/stegofed/domain"
	"github.com/deemkeen/stegofed/util"
	"github.com/google/uuid"
)

// ErrUsage is returned for unknown commands or missing arguments.
var ErrUsage = errors.New("usage")

type Store interface {
	CreateAccount(ctx context.Context, acc *domain.Account) error
	ReadAccByUsername(ctx context.Context, username string) (*domain.Account, error)
	CreateNote(ctx context.Context, note *domain.Note) error
}

// Outbox is the subset of activitypub.Outbox the commands drive.
type Outbox interface {
	Publish(ctx context.Context, acc *domain.Account, note *domain.Note, mentions []string, replyParentAuthor string) (*activitypub.Outgoing, error)
	Follow(ctx context.Context, acc *domain.Account, targetURI string) (*domain.Relationship, error)
	Unfollow(ctx context.Context, acc *domain.Account, targetURI string) (bool, error)
	ApproveFollower(ctx context.Context, acc *domain.Account, followerURI string) error
	RejectFollower(ctx context.Context, acc *domain.Account, followerURI string) error
	DeleteNote(ctx context.Context, acc *domain.Account, noteId uuid.UUID) error
	DeleteAccount(ctx context.Context, acc *domain.Account) error
	Move(ctx context.Context, acc *domain.Account, targetURI string) error
}

type command struct {
	args  string
	about string
	run   func(r *Runner, ctx context.Context, fs *flag.FlagSet, args []string) error
}

var commands = map[string]command{
	"adduser":        {"[-manual] <user>", "create a local account with a fresh key pair", (*Runner).addUser},
	"post":           {"[-visibility v] [-quote p] [-cw text] [-reply uri] <user> <text>", "publish a note", (*Runner).post},
	"follow":         {"<user> <actor-uri>", "follow a remote actor", (*Runner).follow},
	"unfollow":       {"<user> <actor-uri>", "retract a follow", (*Runner).unfollow},
	"approve":        {"<user> <actor-uri>", "accept a pending follower", (*Runner).approve},
	"reject":         {"<user> <actor-uri>", "decline a pending follower", (*Runner).reject},
	"delete-note":    {"<user> <note-id>", "delete a note and tell its audience", (*Runner).deleteNote},
	"delete-account": {"<user>", "tombstone an account and tell its followers", (*Runner).deleteAccount},
	"move":           {"<user> <target-uri>", "announce a migration to target", (*Runner).move},
}

// IsCommand reports whether name is an admin command.
func IsCommand(name string) bool {
	_, ok := commands[name]
	return ok
}

type Runner struct {
	store  Store
	outbox Outbox
	out    io.Writer
	log    *log.Logger
	keygen func() (*util.RsaKeyPair, error)
}

func NewRunner(store Store, outbox Outbox, out io.Writer, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		store:  store,
		outbox: outbox,
		out:    out,
		log:    logger.WithPrefix("admin"),
		keygen: util.GeneratePemKeypair,
	}
}

// Run executes the command named by args[0].
func (r *Runner) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		r.usage()
		return ErrUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		r.usage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(r.out)
	fs.Usage = func() { fmt.Fprintf(r.out, "%s %s\n", args[0], cmd.args) }
	r.log.Debug("Running command", "command", args[0])
	return cmd.run(r, ctx, fs, args[1:])
}

func (r *Runner) usage() {
	fmt.Fprintln(r.out, "commands:")
	for _, name := range []string{"adduser", "post", "follow", "unfollow", "approve", "reject", "delete-note", "delete-account", "move"} {
		fmt.Fprintf(r.out, "  %-15s %s\n", name, commands[name].about)
	}
}

// parse parses the flags of fs and requires n positional arguments.
func parse(fs *flag.FlagSet, args []string, n int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if fs.NArg() != n {
		fs.Usage()
		return nil, fmt.Errorf("%w: %s takes %d arguments", ErrUsage, fs.Name(), n)
	}
	return fs.Args(), nil
}

func (r *Runner) account(ctx context.Context, username string) (*domain.Account, error) {
	acc, err := r.store.ReadAccByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", username, err)
	}
	return acc, nil
}

// withAccount parses n positional arguments after the username and loads
// the account.
func (r *Runner) withAccount(ctx context.Context, fs *flag.FlagSet, args []string, n int) (*domain.Account, []string, error) {
	args, err := parse(fs, args, n+1)
	if err != nil {
		return nil, nil, err
	}
	acc, err := r.account(ctx, args[0])
	if err != nil {
		return nil, nil, err
	}
	return acc, args[1:], nil
}
