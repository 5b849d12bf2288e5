// Package guardianctl implements the parent-side command line tool: key
// generation, signing grant tokens, computing voice approval codes and
// issuing pairing credentials. It is the authorizing counterpart of the
// on-device engine and never touches the child's database.
package guardianctl

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/famgate/famgate/internal/cryptox"
	"github.com/famgate/famgate/internal/grant"
	"github.com/famgate/famgate/internal/pairing"
	"github.com/famgate/famgate/internal/voicecode"
)

type App struct {
	out io.Writer
}

func NewApp(out io.Writer) *App {
	return &App{out: out}
}

// Run dispatches a subcommand. The first argument selects the command,
// the rest are its flags.
func (a *App) Run(args []string) error {
	if len(args) == 0 {
		a.usage()
		return fmt.Errorf("missing command")
	}
	switch args[0] {
	case "keygen":
		return a.keygen()
	case "sign":
		return a.sign(args[1:])
	case "approve":
		return a.approve(args[1:])
	case "voice":
		return a.voice(args[1:])
	case "pair":
		return a.pair(args[1:])
	default:
		a.usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (a *App) usage() {
	fmt.Fprintln(a.out, `usage: guardianctl <command> [flags]

commands:
  keygen    generate a parent signing key pair
  sign      sign a grant token for a child device
  approve   compute the approval code for spoken request codes
  voice     compute the child-keyed voice code
  pair      issue a pairing credential for a child device`)
}

func (a *App) keygen() error {
	kp, err := cryptox.GenerateKeyPair()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "public key: %s\n", hex.EncodeToString(kp.PublicKey))
	fmt.Fprintf(a.out, "seed:       %s\n", hex.EncodeToString(kp.Seed))
	fmt.Fprintln(a.out, "register the public key on the child device; keep the seed private")
	return nil
}

func (a *App) sign(args []string) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(a.out)
	seedHex := fs.String("seed", "", "parent signing seed (hex)")
	kid := fs.String("kid", "", "key id registered on the child device")
	grantType := fs.String("type", grant.TypeExtension, "grant type")
	childID := fs.Int64("child", 0, "child id")
	activity := fs.String("activity", "", "activity id")
	minutes := fs.Int("minutes", 0, "minutes granted")
	device := fs.String("device", "", "device id (empty: any device)")
	hours := fs.Int("valid", 1, "validity window in hours")
	if err := fs.Parse(args); err != nil {
		return err
	}

	seed, err := hex.DecodeString(*seedHex)
	if err != nil {
		return fmt.Errorf("bad seed: %w", err)
	}

	now := time.Now().UTC()
	g := &grant.SignedGrant{
		Type:       *grantType,
		ChildID:    *childID,
		ActivityID: *activity,
		Minutes:    *minutes,
		IssuedAt:   now,
		ExpiresAt:  now.Add(time.Duration(*hours) * time.Hour),
		Nonce:      grant.NewNonce(),
		DeviceID:   *device,
	}
	token, err := grant.Generate(g, seed, *kid)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, token)
	return nil
}

func (a *App) approve(args []string) error {
	fs := flag.NewFlagSet("approve", flag.ContinueOnError)
	fs.SetOutput(a.out)
	requests := fs.String("requests", "", "comma-separated 6-digit request codes")
	family := fs.String("family", "", "family salt (as configured at pairing)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	codes := splitCodes(*requests)
	if len(codes) == 0 {
		return fmt.Errorf("no request codes given")
	}
	for _, c := range codes {
		if _, err := voicecode.ParseRequest(c); err != nil {
			return fmt.Errorf("bad request code %q: %w", c, err)
		}
	}

	secret, err := a.familySecret(*family)
	if err != nil {
		return err
	}
	code := voicecode.ComputeApprovalCode(secret, codes, cryptox.CurrentTimeBucket())
	fmt.Fprintf(a.out, "approval code: %s\n", code)
	return nil
}

func (a *App) voice(args []string) error {
	fs := flag.NewFlagSet("voice", flag.ContinueOnError)
	fs.SetOutput(a.out)
	childID := fs.Int64("child", 0, "child id")
	family := fs.String("family", "", "family salt (as configured at pairing)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret, err := a.familySecret(*family)
	if err != nil {
		return err
	}
	code := voicecode.GenerateVoiceCode(secret, *childID, cryptox.CurrentTimeBucket())
	fmt.Fprintf(a.out, "voice code: %s\n", code)
	return nil
}

func (a *App) pair(args []string) error {
	fs := flag.NewFlagSet("pair", flag.ContinueOnError)
	fs.SetOutput(a.out)
	childID := fs.Int64("child", 0, "child id")
	device := fs.String("device", "", "device id")
	family := fs.String("family", "", "family salt (as configured at pairing)")
	hours := fs.Int("valid", 24, "credential validity in hours")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret, err := a.familySecret(*family)
	if err != nil {
		return err
	}
	token, err := pairing.IssuePairToken(secret, *childID, *device, time.Duration(*hours)*time.Hour)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, token)
	return nil
}

func (a *App) familySecret(salt string) ([]byte, error) {
	if salt == "" {
		return nil, fmt.Errorf("missing -family salt")
	}
	passphrase, err := GetPassphrase(a.out)
	if err != nil {
		return nil, err
	}
	return pairing.DeriveFamilySecret(passphrase, []byte(salt)), nil
}

func splitCodes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = voicecode.NormalizeDigits(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
