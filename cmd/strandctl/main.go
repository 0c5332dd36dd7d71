// strandctl is an operator tool for strand credentials: it generates
// Ed25519 seeds, signs challenge messages on behalf of a subject and
// inspects encoded credentials offline.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"strand/internal/strand/codec"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) < 1 {
		printUsage(os.Stderr)
		return errors.New("subcommand required")
	}
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout)
	case "sign":
		return runSign(args[1:], stdout)
	case "inspect":
		return runInspect(args[1:], stdin, stdout)
	case "-h", "--help", "help":
		printUsage(stdout)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown subcommand: %q", args[0])
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: strandctl <subcommand> [flags]

Subcommands:
  keygen    Generate an Ed25519 seed and its public key
  sign      Sign a challenge signing_message with a subject seed
  inspect   Decode a CBOR credential and check its digest and signature

Run 'strandctl <subcommand> --help' for subcommand flags.
`)
}

type keyOutput struct {
	Seed      string `json:"seed"`
	PublicKey string `json:"public_key"`
}

func runKeygen(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return fmt.Errorf("read random seed: %w", err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return writeJSON(stdout, keyOutput{
		Seed:      hex.EncodeToString(seed),
		PublicKey: hex.EncodeToString(priv.Public().(ed25519.PublicKey)),
	})
}

func runSign(args []string, stdout io.Writer) error {
	var seedHex, messageHex string
	fs := pflag.NewFlagSet("sign", pflag.ContinueOnError)
	fs.StringVar(&seedHex, "seed", os.Getenv("STRAND_SUBJECT_SEED"), "hex subject seed (default $STRAND_SUBJECT_SEED)")
	fs.StringVarP(&messageHex, "message", "m", "", "hex signing_message from the challenge response")
	if err := fs.Parse(args); err != nil {
		return err
	}
	priv, err := parseSeed(seedHex)
	if err != nil {
		return err
	}
	msg, err := hex.DecodeString(strings.TrimSpace(messageHex))
	if err != nil || len(msg) == 0 {
		return errors.New("--message must be non-empty hex")
	}
	_, err = fmt.Fprintln(stdout, hex.EncodeToString(ed25519.Sign(priv, msg)))
	return err
}

type inspectOutput struct {
	ID             string         `json:"id"`
	FormatVersion  uint8          `json:"format_version"`
	CreatedAt      time.Time      `json:"created_at"`
	ExpiresAt      time.Time      `json:"expires_at"`
	SegmentCount   uint32         `json:"segment_count"`
	Segments       map[string]int `json:"segments"`
	Digest         string         `json:"digest"`
	DigestValid    bool           `json:"digest_valid"`
	IssuerKey      string         `json:"issuer_public_key"`
	SignatureValid *bool          `json:"signature_valid,omitempty"`
}

func runInspect(args []string, stdin io.Reader, stdout io.Writer) error {
	var path, issuerHex string
	fs := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	fs.StringVarP(&path, "file", "f", "-", "CBOR credential file, - for stdin")
	fs.StringVar(&issuerHex, "issuer-key", "", "hex issuer public key to verify against")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read credential: %w", err)
	}
	cred, err := codec.DecodeCredential(data)
	if err != nil {
		return fmt.Errorf("decode credential: %w", err)
	}

	out := inspectOutput{
		ID:            cred.ID,
		FormatVersion: cred.FormatVersion,
		CreatedAt:     cred.CreatedAt,
		ExpiresAt:     cred.ExpiresAt,
		SegmentCount:  cred.SegmentCount,
		Segments:      make(map[string]int),
		Digest:        cred.Digest.Hex(),
		DigestValid:   codec.CredentialDigest(cred.SegmentCount, cred.Segments) == cred.Digest,
		IssuerKey:     hex.EncodeToString(cred.IssuerPublicKey),
	}
	for t, n := range cred.CountByType() {
		out.Segments[t.String()] = n
	}
	if issuerHex != "" {
		key, err := hex.DecodeString(issuerHex)
		if err != nil || len(key) != ed25519.PublicKeySize {
			return errors.New("--issuer-key must be a hex Ed25519 public key")
		}
		ok, err := codec.VerifyCredentialSignature(cred, key)
		if err != nil {
			return fmt.Errorf("verify signature: %w", err)
		}
		out.SignatureValid = &ok
	}
	return writeJSON(stdout, out)
}

func parseSeed(seedHex string) (ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(strings.TrimSpace(seedHex))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, errors.New("--seed must be 32 hex-encoded bytes")
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
