// Command nanorelay is a minimal command-line front end to the client
// SDK, mostly useful for poking at a relay during development.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	nanorelay "github.com/nanorelay/client-go"
)

func main() {
	if len(os.Args) < 2 {
		fatal("usage: nanorelay <keygen|send|fetch|register|resolve> [args]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "keygen":
		keygen()
	case "send":
		if len(os.Args) < 4 {
			fatal("usage: nanorelay send <recipient-pubkey> <message>")
		}
		withClient(func(c *nanorelay.Client) error {
			msg, err := c.Send(ctx, os.Args[2], os.Args[3])
			if err != nil {
				return err
			}
			fmt.Printf("sent %s (%s)\n", msg.ID, msg.Mode)
			return nil
		})
	case "fetch":
		withClient(func(c *nanorelay.Client) error {
			msgs, err := c.Fetch(ctx)
			if err != nil {
				return err
			}
			for _, msg := range msgs {
				fmt.Printf("%s  %s  %s\n", msg.Timestamp.Format(time.RFC3339), msg.FromPubKey, msg.Content)
			}
			fmt.Printf("%d new message(s)\n", len(msgs))
			return nil
		})
	case "register":
		if len(os.Args) < 3 {
			fatal("usage: nanorelay register <username>")
		}
		withClient(func(c *nanorelay.Client) error {
			return c.RegisterUsername(ctx, os.Args[2])
		})
	case "resolve":
		if len(os.Args) < 3 {
			fatal("usage: nanorelay resolve <username>")
		}
		withClient(func(c *nanorelay.Client) error {
			contact, err := c.ResolveUsername(ctx, os.Args[2])
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s)\n%s\n", contact.Username, contact.Mode, contact.PublicKey)
			return nil
		})
	default:
		fatal("unknown command: %s", os.Args[1])
	}
}

func keygen() {
	mode := nanorelay.ModeHybrid
	if s := os.Getenv("NANORELAY_MODE"); s != "" {
		m, err := nanorelay.ParseMode(s)
		if err != nil {
			fatal("%v", err)
		}
		mode = m
	}
	identity, err := nanorelay.NewIdentity(mode)
	if err != nil {
		fatal("generate identity: %v", err)
	}

	client, err := newClient(identity)
	if err != nil {
		fatal("create client: %v", err)
	}
	defer client.Close()
	if err := client.SaveState(statePath()); err != nil {
		fatal("save state: %v", err)
	}

	out, _ := json.Marshal(map[string]string{
		"mode":   mode.String(),
		"pubkey": identity.PublicKey(),
		"state":  statePath(),
	})
	fmt.Println(string(out))
}

// withClient loads the saved identity and state, runs fn, and writes
// the state back so counters survive between invocations.
func withClient(fn func(*nanorelay.Client) error) {
	identity, err := nanorelay.LoadIdentity(statePath())
	if err != nil {
		fatal("load identity: %v", err)
	}
	if identity == nil {
		fatal("no identity at %s; run 'nanorelay keygen' first", statePath())
	}

	client, err := newClient(identity)
	if err != nil {
		fatal("create client: %v", err)
	}
	defer client.Close()
	if err := client.LoadState(statePath()); err != nil {
		fatal("load state: %v", err)
	}

	if err := fn(client); err != nil {
		fatal("%v", err)
	}
	if err := client.SaveState(statePath()); err != nil {
		fatal("save state: %v", err)
	}
}

func newClient(identity *nanorelay.Identity) (*nanorelay.Client, error) {
	addr := os.Getenv("NANORELAY_ADDR")
	if addr == "" {
		addr = "127.0.0.1:7733"
	}
	return nanorelay.New(identity, nanorelay.WithRelayAddress(addr))
}

func statePath() string {
	if p := os.Getenv("NANORELAY_STATE"); p != "" {
		return p
	}
	return "nanorelay-state.json"
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
