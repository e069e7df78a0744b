package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/plotchat/cmd/plotchat/cmds"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmds.NewRootCommand().ExecuteContext(ctx)
	cobra.CheckErr(err)
}
