package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jknl-dev/platform-kit/kafka"
	"github.com/jknl-dev/platform-kit/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type consumeOptions struct {
	topics        []string
	groupID       string
	raw           bool
	fromBeginning bool
}

func newConsumeCmd(open func(*cobra.Command) (*app, error)) *cobra.Command {
	var opts consumeOptions

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume topics and log every record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			return runConsume(cmd.Context(), a, opts)
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&opts.topics, "topic", []string{"user-events"}, "topic to consume (repeatable)")
	f.StringVar(&opts.groupID, "group", "analytics-consumer-group", "consumer group id")
	f.BoolVar(&opts.raw, "raw", false, "log raw records instead of routing decoded values per topic")
	f.BoolVar(&opts.fromBeginning, "from-beginning", false, "start at the oldest record when the group has no offsets (raw mode)")
	return cmd
}

func runConsume(ctx context.Context, a *app, opts consumeOptions) error {
	consumer, err := a.manager.CreateConsumer("analytics", kafka.ConsumerOptions{GroupID: opts.groupID})
	if err != nil {
		return err
	}
	if err := consumer.Connect(ctx); err != nil {
		return err
	}
	a.log.InfoCtx(ctx, "consumer connected", zap.String("group_id", opts.groupID))

	run := func(ctx context.Context) error {
		if opts.raw {
			for _, topic := range opts.topics {
				if err := consumer.Subscribe(ctx, topic, opts.fromBeginning); err != nil {
					return err
				}
			}
			return consumer.Run(ctx, rawLogger(a.log))
		}

		for _, topic := range opts.topics {
			consumer.RegisterHandler(topic, valueLogger(a.log))
		}
		return consumer.StartWithHandlers(ctx)
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		return run(ctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			a.log.InfoCtx(ctx, "shutting down consumer")
			consumer.Stop()
		case <-done:
		}
		return nil
	})
	return g.Wait()
}

// rawLogger logs every record with its metadata
func rawLogger(log *logger.CtxZapLogger) kafka.RawHandler {
	return func(ctx context.Context, msg *kafka.Message) error {
		headers := make(map[string]string, len(msg.Headers))
		for k, v := range msg.Headers {
			headers[k] = string(v)
		}
		log.InfoCtx(ctx, "received message",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.ByteString("key", msg.Key),
			zap.ByteString("value", msg.Value),
			zap.Any("headers", headers))
		return nil
	}
}

// valueLogger logs the decoded value routed to a topic
func valueLogger(log *logger.CtxZapLogger) kafka.TopicHandler {
	return func(ctx context.Context, value any) error {
		fields := []zap.Field{zap.Any("value", value)}
		if msg, ok := kafka.MessageFromContext(ctx); ok {
			fields = append(fields,
				zap.String("topic", msg.Topic),
				zap.Int32("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.ByteString("key", msg.Key))
		}
		log.InfoCtx(ctx, "processing message", fields...)
		return nil
	}
}
