package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = func(s string) { fmt.Println(s) }

// execIface is the command surface the REPL dispatches to. The real App
// satisfies it; tests provide a stub.
type execIface interface {
	isSignedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Sync(ctx context.Context) error
	Pull(ctx context.Context) error
	List(ctx context.Context) error
	Delete(ctx context.Context, id string) error
	JoinCampaign(ctx context.Context, campaignID string, asGM bool) error
	LeaveCampaign(ctx context.Context) error
	Publish(ctx context.Context) error
	Lobby(ctx context.Context) error
	Status(ctx context.Context) error
	Reset(ctx context.Context) error
}

// runREPL reads a line, parses the first token as the command, and
// dispatches. Exits on scanner EOF or "exit"/"quit". Handler errors are
// printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("vm> %s >", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			printHelp(a.isSignedIn())
		case "login":
			err = a.Login(ctx)
		case "logout":
			err = a.Logout(ctx)
		case "sync":
			err = a.Sync(ctx)
		case "pull":
			err = a.Pull(ctx)
		case "list":
			err = a.List(ctx)
		case "delete":
			if len(args) != 1 {
				printlnFn("usage: delete <id>")
				continue
			}
			err = a.Delete(ctx, args[0])
		case "join":
			if len(args) < 1 {
				printlnFn("usage: join <campaign> [gm]")
				continue
			}
			err = a.JoinCampaign(ctx, args[0], len(args) > 1 && args[1] == "gm")
		case "leave":
			err = a.LeaveCampaign(ctx)
		case "publish":
			err = a.Publish(ctx)
		case "lobby":
			err = a.Lobby(ctx)
		case "status":
			err = a.Status(ctx)
		case "reset":
			err = a.Reset(ctx)
		case "exit", "quit":
			return
		default:
			printlnFn("Unknown command. Type 'help'.")
		}
		if err != nil {
			printlnFn("Error: " + err.Error())
		}
	}
}

func printHelp(signedIn bool) {
	printlnFn("Commands: list, delete <id>, join <campaign> [gm], leave, publish, lobby, status, reset, exit")
	if signedIn {
		printlnFn("Cloud: sync, pull, logout")
	} else {
		printlnFn("Cloud: login (then sync, pull)")
	}
}
