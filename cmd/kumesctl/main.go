package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MRDNPRNCE/kumes-otomasyon/internal/protocol"
)

var (
	serverHost string
	serverPort int
	username   string
	password   string
)

func main() {
	root := &cobra.Command{
		Use:   "kumesctl",
		Short: "Operator client for the coop automation daemon",
	}

	root.PersistentFlags().StringVar(&serverHost, "host", "127.0.0.1", "Daemon host")
	root.PersistentFlags().IntVar(&serverPort, "port", 8765, "Daemon websocket port")
	root.PersistentFlags().StringVarP(&username, "user", "u", "", "Username")
	root.PersistentFlags().StringVarP(&password, "password", "p", "", "Password")

	root.AddCommand(
		watchCmd(),
		commandCmd(),
		modeCmd(),
		directCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Log in and stream session events and telemetry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch()
		},
	}
}

func commandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cmd <command>",
		Short: "Log in and send one device command (legacy or JSON form)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(args[0])
		},
	}
}

func modeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mode <active|watching>",
		Short: "Switch the admin control mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := protocol.Mode(args[0])
			if !mode.Valid() {
				return fmt.Errorf("invalid mode %q (use active or watching)", args[0])
			}
			return runMode(mode)
		},
	}
}

func directCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "direct <command>",
		Short: "Send a command straight to a controller endpoint, no session",
		Long:  "Connects to the controller itself (typically port 81) and transmits the normalized command without authentication. Intended for bench testing firmware.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDirect(args[0])
		},
	}
}
