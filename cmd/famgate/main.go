// famgate is the on-device authorization CLI. Every invocation loads the
// local state, performs one operation and exits; the device app embeds the
// same engine package directly.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/famgate/famgate/internal/config"
	"github.com/famgate/famgate/internal/engine"
	"github.com/famgate/famgate/internal/keystore"
	"github.com/famgate/famgate/internal/logging"
	"github.com/famgate/famgate/internal/pairing"
)

const secretFile = ".famgate_secret"

// deviceSecret loads the device-bound secret, creating one on first run.
// Real deployments back this with the platform keystore instead.
func deviceSecret() ([]byte, error) {
	secret, err := os.ReadFile(secretFile)
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	secret = make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	if err := os.WriteFile(secretFile, secret, 0o600); err != nil {
		return nil, err
	}
	return secret, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: famgate <command> [args]

commands:
  check <activity>          evaluate whether an activity is allowed now
  use <activity> <minutes>  record locally observed usage
  ingest <file>             apply a schedule snapshot document
  apply <token>             apply a signed grant token
  pair <token> <passphrase> <salt>   store the pairing credential
  pending                   show local state awaiting sync
  ack                       clear local state after sync`)
}

func main() {
	cfg := config.LoadConfig()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	ctx := context.Background()

	secret, err := deviceSecret()
	if err != nil {
		log.Fatalf("device secret: %v", err)
	}

	e, err := engine.New(ctx, cfg, keystore.StaticSecretProvider{Secret: secret}, logger, nil)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer e.Close()

	args := flagFreeArgs()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	if err := run(ctx, e, args); err != nil {
		log.Fatalf("%v", err)
	}
}

// flagFreeArgs strips the config flags consumed elsewhere, leaving the
// command and its positional arguments.
func flagFreeArgs() []string {
	skip := map[string]bool{"-d": true, "-g": true, "-b": true, "-c": true, "-config": true}
	var out []string
	for i := 1; i < len(os.Args); i++ {
		if skip[os.Args[i]] {
			i++
			continue
		}
		out = append(out, os.Args[i])
	}
	return out
}

func run(ctx context.Context, e *engine.Engine, args []string) error {
	switch args[0] {
	case "check":
		if len(args) < 2 {
			return fmt.Errorf("check: missing activity")
		}
		res := e.Check(args[1])
		fmt.Printf("allowed=%v reason=%s remaining=%d\n", res.Allowed, res.Reason, res.RemainingMinutes)
		return nil
	case "use":
		if len(args) < 3 {
			return fmt.Errorf("use: need activity and minutes")
		}
		minutes, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("use: bad minutes %q", args[2])
		}
		return e.LogUsage(ctx, args[1], minutes)
	case "ingest":
		if len(args) < 2 {
			return fmt.Errorf("ingest: missing snapshot file")
		}
		raw, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		return e.IngestSnapshot(ctx, raw)
	case "apply":
		if len(args) < 2 {
			return fmt.Errorf("apply: missing token")
		}
		g, err := e.ApplyGrantToken(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("applied %s grant: %s +%d min\n", g.Type, g.ActivityID, g.Minutes)
		return nil
	case "pair":
		if len(args) < 4 {
			return fmt.Errorf("pair: need token, passphrase and salt")
		}
		familySecret := pairing.DeriveFamilySecret([]byte(args[2]), []byte(args[3]))
		return e.Pair(ctx, args[1], familySecret)
	case "pending":
		pendingUsage, extensions := e.PendingSync()
		fmt.Printf("usage: %v\nextensions: %d\n", pendingUsage, len(extensions))
		return nil
	case "ack":
		return e.AcknowledgeSync(ctx)
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}
