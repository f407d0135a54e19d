// Command epaperpub aggregates Nostr publications, articles and highlights
// into readable, downloadable documents and serves them over HTTP.
package main

import (
	"github.com/silberengel/epaperpub/cli"
	"github.com/silberengel/epaperpub/common"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		common.Logger.WithError(err).Fatal("epaperpub exited with error")
	}
}
