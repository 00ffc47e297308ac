package cli

import (
	"bufio"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// stubExec records which commands the REPL dispatched.
type stubExec struct {
	calls    []string
	signedIn bool
	err      error
}

func (s *stubExec) record(name string) error {
	s.calls = append(s.calls, name)
	return s.err
}

func (s *stubExec) isSignedIn() bool                { return s.signedIn }
func (s *stubExec) Login(context.Context) error     { return s.record("login") }
func (s *stubExec) Logout(context.Context) error    { return s.record("logout") }
func (s *stubExec) Sync(context.Context) error      { return s.record("sync") }
func (s *stubExec) Pull(context.Context) error      { return s.record("pull") }
func (s *stubExec) List(context.Context) error      { return s.record("list") }
func (s *stubExec) Delete(_ context.Context, id string) error {
	return s.record("delete " + id)
}
func (s *stubExec) JoinCampaign(_ context.Context, campaignID string, asGM bool) error {
	if asGM {
		return s.record("join " + campaignID + " gm")
	}
	return s.record("join " + campaignID)
}
func (s *stubExec) LeaveCampaign(context.Context) error { return s.record("leave") }
func (s *stubExec) Publish(context.Context) error       { return s.record("publish") }
func (s *stubExec) Lobby(context.Context) error         { return s.record("lobby") }
func (s *stubExec) Status(context.Context) error        { return s.record("status") }
func (s *stubExec) Reset(context.Context) error         { return s.record("reset") }

func runScript(t *testing.T, stub *stubExec, script string) []string {
	t.Helper()
	var out []string
	orig := printlnFn
	printlnFn = func(s string) { out = append(out, s) }
	defer func() { printlnFn = orig }()

	scanner := bufio.NewScanner(strings.NewReader(script))
	runREPL(context.Background(), stub, func() string { return "test" }, scanner)
	return out
}

func TestREPL_DispatchesCommands(t *testing.T) {
	stub := &stubExec{}
	runScript(t, stub, "list\nsync\njoin c1\njoin c1 gm\ndelete x1\nleave\nstatus\nexit\n")

	assert.Equal(t, []string{
		"list", "sync", "join c1", "join c1 gm", "delete x1", "leave", "status",
	}, stub.calls)
}

func TestREPL_ExitStopsBeforeRemainingInput(t *testing.T) {
	stub := &stubExec{}
	runScript(t, stub, "quit\nlist\n")
	assert.Empty(t, stub.calls)
}

func TestREPL_UsageMessages(t *testing.T) {
	stub := &stubExec{}
	out := runScript(t, stub, "delete\njoin\nbogus\n")

	assert.Empty(t, stub.calls)
	joined := strings.Join(out, "\n")
	assert.Contains(t, joined, "usage: delete <id>")
	assert.Contains(t, joined, "usage: join <campaign> [gm]")
	assert.Contains(t, joined, "Unknown command")
}

func TestREPL_HandlerErrorsArePrintedNotFatal(t *testing.T) {
	stub := &stubExec{err: assert.AnError}
	out := runScript(t, stub, "sync\nlist\nexit\n")

	assert.Equal(t, []string{"sync", "list"}, stub.calls)
	assert.Contains(t, strings.Join(out, "\n"), "Error: ")
}

func TestREPL_EmptyLinesIgnored(t *testing.T) {
	stub := &stubExec{}
	runScript(t, stub, "\n\n   \nlist\n")
	assert.Equal(t, []string{"list"}, stub.calls)
}

func TestHelp_FollowsSignInState(t *testing.T) {
	stub := &stubExec{signedIn: false}
	out := runScript(t, stub, "help\n")
	assert.Contains(t, strings.Join(out, "\n"), "login")

	stub = &stubExec{signedIn: true}
	out = runScript(t, stub, "help\n")
	assert.Contains(t, strings.Join(out, "\n"), "logout")
}
