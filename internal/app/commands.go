package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hitoshi/snoozeclient/internal/export"
	"github.com/hitoshi/snoozeclient/internal/fakeapi"
	"github.com/hitoshi/snoozeclient/internal/model"
)

// cli はコマンド実行中の状態を保持する。
type cli struct {
	out       io.Writer
	logWriter io.Writer

	verbose bool
	format  string

	logger *slog.Logger
	rt     *runtime
	render *renderer
}

// newRootCommand はsnoozeのルートコマンドとすべてのサブコマンドを組み立てる。
func newRootCommand(out, logWriter io.Writer) (*cobra.Command, *cli) {
	c := &cli{out: out, logWriter: logWriter}

	root := &cobra.Command{
		Use:           "snooze",
		Short:         "Hack or Snooze story-sharing client",
		Long:          "snooze reads the shared story feed and lets a logged-in user submit, favorite and delete stories.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&c.format, "format", formatText, "output format: text or json")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err}
	})

	root.AddCommand(
		c.storiesCommand(),
		c.storyCommand(),
		c.signupCommand(),
		c.loginCommand(),
		c.logoutCommand(),
		c.whoamiCommand(),
		c.submitCommand(),
		c.deleteCommand(),
		c.favoriteCommand(CommandFavorite, "Add a story to your favorites", true),
		c.favoriteCommand(CommandUnfavorite, "Remove a story from your favorites", false),
		c.toggleCommand(),
		c.favoritesCommand(),
		c.mineCommand(),
		c.exportCommand(),
		c.fakeServerCommand(),
	)
	return root, c
}

// setup は設定とログを初期化し、fake-server以外では依存関係を組み立てる。
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, log, err := Init(c.logWriter, c.verbose)
	if err != nil {
		return err
	}
	c.logger = log

	if cmd.Name() == string(CommandFakeServer) {
		c.rt = &runtime{cfg: cfg, logger: log}
		return nil
	}

	c.rt = newRuntime(cfg, log)
	c.render, err = newRenderer(c.out, c.format, c.rt.sanitizer)
	return err
}

// close はコマンド終了時に依存関係を解放する。
func (c *cli) close() {
	if c.rt != nil && c.rt.client != nil {
		c.rt.close()
	}
}

// exactArgs はcobra.ExactArgsの誤りを終了コード2として扱う。
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}

func (c *cli) storiesCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   string(CommandStories),
		Short: "List the story feed, newest first",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.rt.retry.Do(cmd.Context(), "start", c.rt.client.Start); err != nil {
				return err
			}
			feed := c.rt.client.Feed()
			if limit > 0 && len(feed) > limit {
				feed = feed[:limit]
			}
			return c.render.stories(feed, c.rt.client.IsFavorite)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many stories (0 = all)")
	return cmd
}

func (c *cli) storyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandStory) + " <story-id>",
		Short: "Show a single story",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var story model.Story
			err := c.rt.retry.Do(ctx, "fetch_story", func(ctx context.Context) error {
				var err error
				story, err = c.rt.client.FetchStory(ctx, args[0])
				return err
			})
			if err != nil {
				return err
			}
			// ログイン済みであればお気に入りの印を付ける
			if _, ok := c.rt.client.Session(); !ok {
				if _, err := c.rt.client.Restore(ctx); err != nil {
					c.logger.Debug("保存済みセッションを復元できませんでした", slog.String("error", err.Error()))
				}
			}
			return c.render.story(story, c.rt.client.IsFavorite(story.StoryID))
		},
	}
}

func (c *cli) signupCommand() *cobra.Command {
	var username, password, name string
	cmd := &cobra.Command{
		Use:   string(CommandSignup),
		Short: "Create an account and log in",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			session, err := c.rt.client.Signup(cmd.Context(), username, pw, name)
			if err != nil {
				return err
			}
			return c.render.session(session)
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&password, "password", "", "account password (read from stdin when omitted)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func (c *cli) loginCommand() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   string(CommandLogin),
		Short: "Log in and remember the session on this machine",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			session, err := c.rt.client.Login(cmd.Context(), username, pw)
			if err != nil {
				return err
			}
			return c.render.session(session)
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&password, "password", "", "account password (read from stdin when omitted)")
	return cmd
}

func (c *cli) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandLogout),
		Short: "Forget the stored session",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.rt.client.Logout(cmd.Context()); err != nil {
				return err
			}
			return c.render.message("status", "logged out")
		},
	}
}

func (c *cli) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandWhoami),
		Short: "Show the logged-in user",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := c.rt.requireSession(cmd.Context())
			if err != nil {
				return err
			}
			return c.render.session(session)
		},
	}
}

func (c *cli) submitCommand() *cobra.Command {
	var input model.StoryInput
	cmd := &cobra.Command{
		Use:   string(CommandSubmit),
		Short: "Submit a new story",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.rt.requireSession(cmd.Context()); err != nil {
				return err
			}
			story, err := c.rt.client.Publish(cmd.Context(), input)
			if err != nil {
				return err
			}
			return c.render.story(story, false)
		},
	}
	cmd.Flags().StringVar(&input.Title, "title", "", "story title")
	cmd.Flags().StringVar(&input.Author, "author", "", "story author")
	cmd.Flags().StringVar(&input.URL, "url", "", "story URL (http or https)")
	return cmd
}

func (c *cli) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandDelete) + " <story-id>",
		Short: "Delete one of your stories",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.rt.requireSession(cmd.Context()); err != nil {
				return err
			}
			if err := c.rt.client.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			return c.render.result("deleted", args[0])
		},
	}
}

func (c *cli) favoriteCommand(name Command, short string, desired bool) *cobra.Command {
	return &cobra.Command{
		Use:   string(name) + " <story-id>",
		Short: short,
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := c.rt.requireSession(ctx); err != nil {
				return err
			}
			if err := c.rt.client.SetFavorite(ctx, args[0], desired); err != nil {
				return err
			}
			return c.renderFavoriteState(args[0], desired)
		},
	}
}

func (c *cli) toggleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandToggle) + " <story-id>",
		Short: "Flip the favorite state of a story",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := c.rt.requireSession(ctx); err != nil {
				return err
			}
			now, err := c.rt.client.ToggleFavorite(ctx, args[0])
			if err != nil {
				return err
			}
			return c.renderFavoriteState(args[0], now)
		},
	}
}

func (c *cli) renderFavoriteState(storyID string, favorite bool) error {
	if favorite {
		return c.render.result("favorited", storyID)
	}
	return c.render.result("unfavorited", storyID)
}

func (c *cli) favoritesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandFavorites),
		Short: "List your favorite stories, most recently favorited first",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.rt.requireSession(cmd.Context()); err != nil {
				return err
			}
			return c.render.stories(c.rt.client.Favorites(), c.rt.client.IsFavorite)
		},
	}
}

func (c *cli) mineCommand() *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandMine),
		Short: "List the stories you submitted, newest first",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.rt.requireSession(cmd.Context()); err != nil {
				return err
			}
			return c.render.stories(c.rt.client.OwnStories(), c.rt.client.IsFavorite)
		},
	}
}

func (c *cli) exportCommand() *cobra.Command {
	var source, feedFormat, output string
	cmd := &cobra.Command{
		Use:   string(CommandExportRSS),
		Short: "Export the feed, your favorites or your stories as RSS, Atom or JSON Feed",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			format, err := export.ParseFormat(feedFormat)
			if err != nil {
				return &usageError{err}
			}

			var stories []model.Story
			ch := export.Channel{Link: c.rt.cfg.APIBaseURL}
			switch source {
			case "feed":
				if err := c.rt.retry.Do(ctx, "refresh", c.rt.client.Refresh); err != nil {
					return err
				}
				stories = c.rt.client.Feed()
				ch.Title, ch.Description = "Hack or Snooze", "Latest stories"
			case "favorites", "mine":
				session, err := c.rt.requireSession(ctx)
				if err != nil {
					return err
				}
				if source == "favorites" {
					stories = c.rt.client.Favorites()
					ch.Title = "Favorites of " + session.Username
				} else {
					stories = c.rt.client.OwnStories()
					ch.Title = "Stories by " + session.Username
				}
				ch.Description = ch.Title
			default:
				return &usageError{fmt.Errorf("unsupported source: %q (feed, favorites, mine)", source)}
			}

			w := c.out
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			exporter := export.NewExporter(c.rt.sanitizer, c.logger)
			return exporter.Write(w, format, ch, stories)
		},
	}
	cmd.Flags().StringVar(&source, "source", "feed", "stories to export: feed, favorites or mine")
	cmd.Flags().StringVar(&feedFormat, "feed-format", string(export.FormatRSS), "feed format: rss, atom or json")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file (- for stdout)")
	return cmd
}

func (c *cli) fakeServerCommand() *cobra.Command {
	var addr string
	var seed bool
	cmd := &cobra.Command{
		Use:   string(CommandFakeServer),
		Short: "Run an in-memory server implementing the story API for local development",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = c.rt.cfg.FakeAddr
			}
			return runFakeServer(cmd.Context(), c.logger, addr, seed)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default SNOOZE_FAKE_ADDR)")
	cmd.Flags().BoolVar(&seed, "seed", false, "create a demo user and stories on startup")
	return cmd
}

// runFakeServer はフェイクAPIサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runFakeServer(ctx context.Context, log *slog.Logger, addr string, seed bool) error {
	fake := fakeapi.New(log, fakeapi.Options{Registry: prometheus.NewRegistry()})
	if seed {
		if err := seedDemoData(fake); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      fake.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("fake API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down fake API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("fake API server stopped gracefully")
	return nil
}

// seedDemoData はdemo/demoのユーザーとサンプルのストーリーを登録する。
func seedDemoData(fake *fakeapi.Server) error {
	if _, err := fake.SeedUser("demo", "demo", "Demo User"); err != nil {
		return fmt.Errorf("failed to seed demo user: %w", err)
	}
	for _, input := range []model.StoryInput{
		{Title: "The Go Programming Language", Author: "The Go Authors", URL: "https://go.dev/"},
		{Title: "Effective Go", Author: "The Go Authors", URL: "https://go.dev/doc/effective_go"},
		{Title: "Go Concurrency Patterns", Author: "Rob Pike", URL: "https://go.dev/talks/2012/concurrency.slide"},
	} {
		fake.SeedStory("demo", input)
	}
	return nil
}

// readPassword はフラグで指定されていない場合に標準入力の1行目をパスワードとして読む。
func readPassword(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
