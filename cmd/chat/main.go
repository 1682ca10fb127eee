package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/thereayou/marketchat/internal/api"
	"github.com/thereayou/marketchat/internal/attachment"
	"github.com/thereayou/marketchat/internal/config"
	"github.com/thereayou/marketchat/internal/logging"
	"github.com/thereayou/marketchat/internal/messenger"
	"github.com/thereayou/marketchat/internal/transport"
	"github.com/thereayou/marketchat/pkg/auth"
	"golang.org/x/sync/errgroup"
)

var errUploadsDisabled = errors.New("attachments are not configured: set S3_BUCKET")

// noUploader используется без настроенного S3: вложения выбираются, но не отправляются
type noUploader struct{}

func (noUploader) Upload(context.Context, string, string, io.Reader, int64) (attachment.UploadResult, error) {
	return attachment.UploadResult{}, errUploadsDisabled
}

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}

	// лог в stderr, чтобы не мешать выводу чата
	logger := logging.NewWithWriter(cfg.Log, os.Stderr)

	if cfg.UserID == "" {
		cfg.UserID = auth.UnverifiedSubject(cfg.Token)
	}
	if cfg.Token == "" || cfg.UserID == "" {
		logger.Fatal().Msg("CHAT_TOKEN is not set or carries no subject; set CHAT_USER_ID")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var uploader attachment.Uploader = noUploader{}
	if cfg.S3.Bucket != "" {
		s3u, err := attachment.NewS3Uploader(ctx, cfg.S3)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init s3 uploader")
		}
		uploader = s3u
	}

	backend := api.NewClient(cfg.APIBaseURL, cfg.Token, cfg.RequestTimeout, logger)
	dialer := transport.NewDialer(transport.ConfigFrom(cfg.SocketURL, cfg.WebSocket), logger)

	out := newPrinter(os.Stdout)
	m := messenger.New(messenger.Options{
		UserID:           cfg.UserID,
		Token:            cfg.Token,
		PollInterval:     cfg.PollInterval,
		AttachmentPolicy: attachment.MessagePolicy(cfg.MaxAttachmentSize),
		Reconnect:        cfg.Reconnect,
		OnUpdate:         out.onUpdate,
	}, backend, messenger.FromTransport(dialer), uploader, logger)
	out.attach(m)
	defer m.Close()

	if err := m.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start messenger")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return newShell(m, out, os.Stdin).run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
