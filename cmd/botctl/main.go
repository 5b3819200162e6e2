// Command botctl is the administrative CLI for the market-making engine:
// start-worker, resume-all, update-strategy, stats, and inspect operate
// directly against the durable store and RPC endpoint without running the
// persistent worker loop.
package main

import "mmengine/cmd/cli"

func main() {
	cli.Execute()
}
