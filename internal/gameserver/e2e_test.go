package gameserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cairnhall/takserver/internal/config"
	"github.com/cairnhall/takserver/internal/game"
	"github.com/cairnhall/takserver/internal/telnet"
	"github.com/cairnhall/takserver/internal/testutil"
)

// startAcceptor binds the handler to a real TCP listener on a random port.
func startAcceptor(t *testing.T, f *fixture) string {
	t.Helper()
	cfg := config.TelnetConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	acc := telnet.NewAcceptor(cfg, f.handler, zaptest.NewLogger(t))
	go func() {
		_ = acc.ListenAndServe()
	}()
	t.Cleanup(acc.Stop)

	deadline := time.After(2 * time.Second)
	for {
		if acc.IsRunning() && acc.Addr() != "" {
			return acc.Addr()
		}
		select {
		case <-deadline:
			t.Fatal("acceptor did not start in time")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestEndToEndOverTCP(t *testing.T) {
	f := newFixture(t, defaultGameConfig(),
		game.Player{ID: "alice", Name: "alice"},
		game.Player{ID: "bob", Name: "bob"},
	)
	addr := startAcceptor(t, f)

	alice := testutil.NewTelnetClient(t, addr)
	alice.Expect("Welcome!", 2*time.Second)
	alice.Login("alice", "pw", 2*time.Second)

	bob := testutil.NewTelnetClient(t, addr)
	bob.Expect("Welcome!", 2*time.Second)
	bob.Login("bob", "pw", 2*time.Second)

	alice.Send("Seek 5 600 10 W")
	alice.ReadUntilLine("Seek new 1 alice 5 600 10 W 0", 2*time.Second)
	bob.ReadUntilLine("Seek new 1 alice 5 600 10 W 0", 2*time.Second)

	bob.Send("Seek 5 600 10 B")
	got := bob.ReadUntilLine("Game Start 1 alice vs bob black 5 600 10 0", 2*time.Second)
	assert.Contains(t, got, "Seek remove 1 alice 5 600 10 W 0")
	alice.ReadUntilLine("Game Start 1 alice vs bob white 5 600 10 0", 2*time.Second)

	alice.Send("Game#1 P A1")
	bob.ReadUntilLine("Game#1 P A1", 2*time.Second)

	bob.Send("Game#1 Resign")
	alice.ReadUntilLine("Game#1 Over 1-0", 2*time.Second)

	alice.Send("Shout good game")
	bob.ReadUntilLine("Shout <alice> good game", 2*time.Second)

	alice.Send("quit")
	bob.Send("quit")

	require.Eventually(t, func() bool {
		_, _, completed := f.store.snapshot()
		return len(completed) == 1
	}, 2*time.Second, 20*time.Millisecond)
}
