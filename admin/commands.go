package admin

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/deemkeen/stegofed/domain"
	"github.com/google/uuid"
)

func (r *Runner) addUser(ctx context.Context, fs *flag.FlagSet, args []string) error {
	manual := fs.Bool("manual", false, "approve followers by hand")
	display := fs.String("name", "", "display name")
	args, err := parse(fs, args, 1)
	if err != nil {
		return err
	}

	if _, err := r.store.ReadAccByUsername(ctx, args[0]); err == nil {
		return fmt.Errorf("account %s already exists", args[0])
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	keypair, err := r.keygen()
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}
	acc := &domain.Account{
		Username:                  args[0],
		DisplayName:               *display,
		ManuallyApprovesFollowers: *manual,
		WebPublicKey:              keypair.Public,
		WebPrivateKey:             keypair.Private,
	}
	if err := r.store.CreateAccount(ctx, acc); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "created %s (%s)\n", acc.Username, acc.Id)
	return nil
}

func (r *Runner) post(ctx context.Context, fs *flag.FlagSet, args []string) error {
	visibility := fs.String("visibility", string(domain.VisibilityPublic), "public, unlisted, followers or local")
	quote := fs.String("quote", string(domain.QuoteAnyone), "who may quote: anyone, followers or self")
	cw := fs.String("cw", "", "content warning")
	reply := fs.String("reply", "", "URI of the note replied to")
	replyAuthor := fs.String("reply-author", "", "actor URI of the author replied to")
	mentions := fs.String("mention", "", "comma-separated actor URIs to address")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if fs.NArg() < 2 {
		fs.Usage()
		return fmt.Errorf("%w: post takes a user and a text", ErrUsage)
	}

	vis := domain.Visibility(*visibility)
	switch vis {
	case domain.VisibilityPublic, domain.VisibilityQuietPublic, domain.VisibilityPrivate, domain.VisibilityLocal:
	default:
		return fmt.Errorf("%w: unknown visibility %q", ErrUsage, *visibility)
	}
	policy := domain.QuotePolicy(*quote)
	switch policy {
	case domain.QuoteAnyone, domain.QuoteFollowers, domain.QuoteSelf:
	default:
		return fmt.Errorf("%w: unknown quote policy %q", ErrUsage, *quote)
	}

	acc, err := r.account(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	note := &domain.Note{
		AccountId:      acc.Id,
		CreatedBy:      acc.Username,
		Message:        strings.Join(fs.Args()[1:], " "),
		Visibility:     vis,
		InReplyToURI:   *reply,
		Sensitive:      *cw != "",
		ContentWarning: *cw,
		QuotePolicy:    policy,
	}
	if err := r.store.CreateNote(ctx, note); err != nil {
		return err
	}
	if _, err := r.outbox.Publish(ctx, acc, note, splitList(*mentions), *replyAuthor); err != nil {
		return fmt.Errorf("publish %s: %w", note.Id, err)
	}
	fmt.Fprintf(r.out, "posted %s\n", note.Id)
	return nil
}

func (r *Runner) follow(ctx context.Context, fs *flag.FlagSet, args []string) error {
	acc, rest, err := r.withAccount(ctx, fs, args, 1)
	if err != nil {
		return err
	}
	rel, err := r.outbox.Follow(ctx, acc, rest[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "follow of %s is %s\n", rel.RemoteActorURI, rel.State)
	return nil
}

func (r *Runner) unfollow(ctx context.Context, fs *flag.FlagSet, args []string) error {
	acc, rest, err := r.withAccount(ctx, fs, args, 1)
	if err != nil {
		return err
	}
	found, err := r.outbox.Unfollow(ctx, acc, rest[0])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s does not follow %s", acc.Username, rest[0])
	}
	fmt.Fprintf(r.out, "unfollowed %s\n", rest[0])
	return nil
}

func (r *Runner) approve(ctx context.Context, fs *flag.FlagSet, args []string) error {
	acc, rest, err := r.withAccount(ctx, fs, args, 1)
	if err != nil {
		return err
	}
	if err := r.outbox.ApproveFollower(ctx, acc, rest[0]); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "approved %s\n", rest[0])
	return nil
}

func (r *Runner) reject(ctx context.Context, fs *flag.FlagSet, args []string) error {
	acc, rest, err := r.withAccount(ctx, fs, args, 1)
	if err != nil {
		return err
	}
	if err := r.outbox.RejectFollower(ctx, acc, rest[0]); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "rejected %s\n", rest[0])
	return nil
}

func (r *Runner) deleteNote(ctx context.Context, fs *flag.FlagSet, args []string) error {
	acc, rest, err := r.withAccount(ctx, fs, args, 1)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(rest[0])
	if err != nil {
		return fmt.Errorf("%w: invalid note id %q", ErrUsage, rest[0])
	}
	if err := r.outbox.DeleteNote(ctx, acc, id); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "deleted %s\n", id)
	return nil
}

func (r *Runner) deleteAccount(ctx context.Context, fs *flag.FlagSet, args []string) error {
	acc, _, err := r.withAccount(ctx, fs, args, 0)
	if err != nil {
		return err
	}
	if err := r.outbox.DeleteAccount(ctx, acc); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "deleted account %s\n", acc.Username)
	return nil
}

func (r *Runner) move(ctx context.Context, fs *flag.FlagSet, args []string) error {
	acc, rest, err := r.withAccount(ctx, fs, args, 1)
	if err != nil {
		return err
	}
	if err := r.outbox.Move(ctx, acc, rest[0]); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s moved to %s\n", acc.Username, rest[0])
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
