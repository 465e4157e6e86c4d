package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor    bool
	personFlag string
	serverFlag string
)

var rootCmd = &cobra.Command{
	Use:           "agentmesh",
	Short:         "AI-mediated introductions between members of a shared room",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	rootCmd.PersistentFlags().StringVar(&personFlag, "person", os.Getenv("AGENTMESH_PERSON_ID"), "acting person id (env AGENTMESH_PERSON_ID)")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "server base URL (default http://127.0.0.1:<server.port>)")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd)
	rootCmd.AddCommand(personCmd, meCmd, roomCmd, profileCmd, opportunityCmd, configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// requirePerson returns the acting person id or an error naming how to set it.
func requirePerson() (string, error) {
	if personFlag == "" {
		return "", fmt.Errorf("no acting person: pass --person or set AGENTMESH_PERSON_ID")
	}
	return personFlag, nil
}
