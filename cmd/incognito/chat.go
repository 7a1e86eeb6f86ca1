package main

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/incognito-relay/internal/app"
	"github.com/vovakirdan/incognito-relay/internal/chat"
	"github.com/vovakirdan/incognito-relay/internal/config"
	"github.com/vovakirdan/incognito-relay/internal/downloads"
	"github.com/vovakirdan/incognito-relay/internal/session"
)

type chatOptions struct {
	username    string
	password    string
	downloadDir string
	withRelay   bool
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join the relay from the terminal",
		Long: "Join the relay from the terminal.\n\n" +
			"Type a line to send it, /file PATH to share a file, /quit to leave.\n" +
			"Received files are written to the download directory.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root.overrides.DownloadDir = opts.downloadDir
			cfg, logger, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runChat(cmd, cfg, logger, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.username, "username", "u", "", "display name (prompted when empty)")
	flags.StringVarP(&opts.password, "password", "p", "", "password (any non-empty value is accepted)")
	flags.StringVar(&opts.downloadDir, "download-dir", "", "where received files are saved (default ~/Downloads)")
	flags.BoolVar(&opts.withRelay, "with-relay", false, "also start a relay in this process")
	return cmd
}

func runChat(cmd *cobra.Command, cfg config.Config, logger *zerolog.Logger, opts *chatOptions) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Login and the console share one buffered reader so piped input is not lost.
	in, out := bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout()

	username, err := login(in, out, opts)
	if err != nil {
		return err
	}

	if opts.withRelay {
		startEmbeddedRelay(ctx, cfg, logger)
	}

	saver, err := downloads.NewOSSaver(cfg.DownloadDir)
	if err != nil {
		return err
	}
	transcript := chat.NewTranscript(out, saver)

	connected := false
	sess := session.New(session.Options{
		Username:     username,
		MaxFrameSize: cfg.MaxMessageSize,
		Logger:       logger,
		OnMessage:    transcript.Render,
		OnStateChange: func(state session.State, detail string) {
			switch state {
			case session.StateConnected:
				connected = true
			case session.StateClosed:
				// A failed first dial gets the offline banner instead.
				if !connected {
					return
				}
			}
			transcript.Status(state, detail)
		},
	})
	defer sess.Close()

	if err := sess.Open(ctx, cfg.Addr); err != nil {
		// Degraded mode: keep the console so the user sees local notices.
		transcript.ConnectionFailed(err)
	}

	console := chat.NewConsole(sess, transcript, afero.NewOsFs())
	return console.Run(ctx, in)
}

func login(in io.Reader, out io.Writer, opts *chatOptions) (string, error) {
	if opts.username != "" || opts.password != "" {
		return chat.CheckCredentials(opts.username, opts.password)
	}
	return chat.Prompt(in, out)
}

// startEmbeddedRelay runs a relay next to the client the way a single-user
// install does. A busy port only means another relay is already up.
func startEmbeddedRelay(ctx context.Context, cfg config.Config, logger *zerolog.Logger) {
	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("embedded relay not started")
		return
	}

	errCh := make(chan error, 1)
	go func() { errCh <- application.Run(ctx) }()

	select {
	case <-application.Ready():
		logger.Info().Str("addr", application.RelayAddr()).Msg("embedded relay started")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("embedded relay not started")
		}
	}
}

var _ chat.Sender = (*session.Session)(nil)
