// main package for the narrator-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/book-expert/narrator/internal/app"
	"github.com/book-expert/narrator/internal/objectstore"
	"github.com/book-expert/narrator/internal/worker"
)

const logFileName = "narrator-service.log"

func run(ctx context.Context) error {
	// 1. Bootstrap logger, configuration and final logger
	application, err := app.Bootstrap(os.Getenv("NARRATOR_CONFIG"), logFileName)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := application.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing resources: %v\n", closeErr)
		}
	}()

	cfg := application.Config
	log := application.Logger

	// 2. Connect to NATS and bind the object store buckets
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("narrator-service"))
	if err != nil {
		log.Error("Failed to connect to NATS at %s: %v", cfg.NATS.URL, err)

		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	textStore, err := objectstore.New(jetstreamContext, cfg.NATS.TextObjectStoreBucket)
	if err != nil {
		return err
	}

	audioStore, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return err
	}

	// 3. Wire the conversion pipeline
	converter, err := application.Converter(ctx)
	if err != nil {
		log.Error("Failed to build the conversion pipeline: %v", err)

		return fmt.Errorf("failed to build converter: %w", err)
	}

	natsWorker, err := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.ConversionSubject,
		cfg.NATS.QueueGroup,
		textStore,
		audioStore,
		converter,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	// 4. Serve until interrupted
	log.System("Narrator service initialized. Listening for jobs on subject: %s", cfg.NATS.ConversionSubject)

	return natsWorker.Run(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
