// Command manage_experts curates the expert answers that replace bad
// responses.
//
//	manage_experts add -question "..." -answer "..."
//	manage_experts list
//	manage_experts unanswered
//	manage_experts delete <id>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ahrav/go-trustrag/infrastructure/expert"
	"github.com/ahrav/go-trustrag/internal/application"
)

var errUsage = errors.New("usage: manage_experts [-config file] add|list|unanswered|delete")

func main() {
	configPath := flag.String("config", "", "YAML configuration file (defaults to $TRUSTRAG_CONFIG)")
	flag.Parse()

	if err := run(*configPath, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "manage_experts: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, args []string) error {
	cfg, err := application.LoadConfig(configPath)
	if err != nil {
		return err
	}
	// Management is explicit, so open the store even when lookups are
	// disabled for the pipeline.
	cfg.Experts.Enabled = true
	store, err := application.OpenExpertStore(cfg.Experts)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execute(ctx, store, args, os.Stdout)
}

func execute(ctx context.Context, store expert.Store, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "add":
		fs := flag.NewFlagSet("add", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		question := fs.String("question", "", "question the answer applies to")
		answer := fs.String("answer", "", "expert answer")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if strings.TrimSpace(*question) == "" || strings.TrimSpace(*answer) == "" {
			return errors.New("add requires -question and -answer")
		}
		entry, err := store.Add(ctx, *question, *answer)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "added %s\n", entry.ID)
		return err

	case "list":
		entries, err := store.List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tQUESTION\tANSWER\tCREATED")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, oneLine(e.Question), oneLine(e.Answer), e.CreatedAt.Format(time.RFC3339))
		}
		return tw.Flush()

	case "unanswered":
		questions, err := store.ListUnanswered(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "COUNT\tLAST SEEN\tQUESTION")
		for _, q := range questions {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", q.Count, q.LastSeen.Format(time.RFC3339), oneLine(q.Question))
		}
		return tw.Flush()

	case "delete":
		if len(rest) != 1 {
			return errors.New("delete requires exactly one id")
		}
		if err := store.Delete(ctx, rest[0]); err != nil {
			return err
		}
		_, err := fmt.Fprintf(out, "deleted %s\n", rest[0])
		return err
	}
	return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 80 {
		return s[:77] + "..."
	}
	return s
}
