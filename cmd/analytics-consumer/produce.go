package main

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jknl-dev/platform-kit/kafka"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type produceOptions struct {
	topic   string
	key     string
	value   string
	headers map[string]string
}

func newProduceCmd(open func(*cobra.Command) (*app, error)) *cobra.Command {
	var opts produceOptions

	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Send one record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.value == "" {
				return errors.New("--value is required")
			}
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			return runProduce(cmd.Context(), a, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.topic, "topic", "user-events", "target topic")
	f.StringVar(&opts.key, "key", "", "record key (default: random uuid)")
	f.StringVar(&opts.value, "value", "", "record value")
	f.StringToStringVar(&opts.headers, "header", nil, "record header key=value (repeatable)")
	return cmd
}

func runProduce(ctx context.Context, a *app, opts produceOptions) error {
	producer, err := a.manager.CreateProducer("analytics", kafka.ProducerOptions{})
	if err != nil {
		return err
	}
	if err := producer.Connect(ctx); err != nil {
		return err
	}

	key := opts.key
	if key == "" {
		key = uuid.NewString()
	}

	reports, err := producer.Send(ctx, opts.topic, []kafka.Record{{
		Key:     []byte(key),
		Value:   []byte(opts.value),
		Headers: opts.headers,
	}})
	if err != nil {
		return err
	}

	for _, r := range reports {
		a.log.InfoCtx(ctx, "message sent",
			zap.String("topic", r.Topic),
			zap.Int32("partition", r.Partition),
			zap.Int64("offset", r.Offset),
			zap.String("key", key))
	}
	return nil
}
