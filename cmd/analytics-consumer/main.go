// Command analytics-consumer consumes and produces analytics events.
//
//	analytics-consumer consume --topic user-events
//	analytics-consumer consume --topic user-events --raw --from-beginning
//	analytics-consumer produce --topic user-events --value '{"event":"login"}'
//	analytics-consumer health
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           appName,
		Short:         "Analytics Kafka consumer and producer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	bindGlobalFlags(root.PersistentFlags(), &configPath)

	open := func(cmd *cobra.Command) (*app, error) {
		return newApp(configPath, cmd.Flags())
	}

	root.AddCommand(newConsumeCmd(open), newProduceCmd(open), newHealthCmd(open))
	return root
}

// bindGlobalFlags registers the flags every command shares; see flagKeys
func bindGlobalFlags(pf *pflag.FlagSet, configPath *string) {
	pf.StringVar(configPath, "config", "configs/"+appName, "directory holding config.yaml and <env>.yaml")
	pf.String("env", "", "deployment environment (development, production); also selects <env>.yaml")
	pf.Bool("in-cluster", false, "running inside the cluster network")
	pf.StringSlice("brokers", nil, "explicit broker addresses, overrides discovery")
	pf.String("client-id", "", "client id reported to brokers")
	pf.Bool("tls", true, "use TLS for broker connections")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
}
