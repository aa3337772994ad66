package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/Jeffreasy/LaventeCareGateway/internal/auth"
	"github.com/Jeffreasy/LaventeCareGateway/internal/config"
	"github.com/Jeffreasy/LaventeCareGateway/internal/crypto"
	"github.com/Jeffreasy/LaventeCareGateway/internal/kvstore"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: control <command> [args]")
		fmt.Println("Commands:")
		fmt.Println("  seal            Encrypt a secret for use in the environment")
		fmt.Println("  inspect-token   Decrypt and print a bearer token")
		fmt.Println("  session-info    Show a stored session")
		fmt.Println("  revoke-session  Delete a stored session")
		os.Exit(1)
	}

	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	switch cmd := os.Args[1]; cmd {
	case "seal":
		sealCmd()
	case "inspect-token":
		inspectTokenCmd()
	case "session-info":
		sessionInfoCmd()
	case "revoke-session":
		revokeSessionCmd()
	default:
		log.Fatalf("Unknown command: %s", cmd)
	}
}

func sealCmd() {
	fs := flag.NewFlagSet("seal", flag.ExitOnError)
	value := fs.String("value", "", "Plaintext secret")
	fs.Parse(os.Args[2:])

	if *value == "" {
		fmt.Println("Error: --value is required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	cfg := config.Load()
	if cfg.SecretsKey == "" {
		log.Fatal("SECRETS_KEY environment variable is not set (generate one with keygen)")
	}

	sealer, err := crypto.NewSealer(cfg.SecretsKey)
	if err != nil {
		log.Fatalf("Invalid SECRETS_KEY: %v", err)
	}
	sealed, err := sealer.Seal(*value)
	if err != nil {
		log.Fatalf("Failed to seal value: %v", err)
	}
	fmt.Println(sealed)
}

func inspectTokenCmd() {
	fs := flag.NewFlagSet("inspect-token", flag.ExitOnError)
	token := fs.String("token", "", "Bearer token (without the Bearer prefix)")
	fs.Parse(os.Args[2:])

	if *token == "" {
		fmt.Println("Error: --token is required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	cfg := mustLoad()
	if cfg.JWESecret == "" {
		log.Fatal("JWE_SECRET environment variable is not set")
	}
	codec, err := auth.NewTokenCodec(cfg.JWESecret)
	if err != nil {
		log.Fatalf("Invalid JWE_SECRET: %v", err)
	}

	payload, ok := codec.VerifyToken(*token)
	if !ok {
		log.Fatal("❌ Token is invalid, expired or was issued under another secret")
	}

	fmt.Printf("✅ Token valid until %s\n", time.Unix(payload.Exp, 0).UTC().Format(time.RFC3339))
	printJSON(payload)
}

func sessionInfoCmd() {
	fs := flag.NewFlagSet("session-info", flag.ExitOnError)
	user := fs.String("user", "", "Session identifier (email or phone number)")
	sessionType := fs.String("type", string(auth.SessionWeb), "Session type (web or whatsapp)")
	fs.Parse(os.Args[2:])

	if *user == "" {
		fmt.Println("Error: --user is required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	sessions, closeStore := openSessions()
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := sessions.GetSession(ctx, *user, auth.SessionType(*sessionType))
	if err != nil {
		log.Fatalf("Failed to read session: %v", err)
	}
	if session == nil {
		fmt.Printf("⚠️  No %s session for %s\n", *sessionType, *user)
		return
	}

	fmt.Printf("✅ Session found (created %s)\n", session.CreatedAt.Format(time.RFC3339))
	printJSON(session)
}

func revokeSessionCmd() {
	fs := flag.NewFlagSet("revoke-session", flag.ExitOnError)
	user := fs.String("user", "", "Session identifier (email or phone number)")
	sessionType := fs.String("type", string(auth.SessionWeb), "Session type (web or whatsapp)")
	fs.Parse(os.Args[2:])

	if *user == "" {
		fmt.Println("Error: --user is required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	sessions, closeStore := openSessions()
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	removed, err := sessions.DeleteSession(ctx, *user, auth.SessionType(*sessionType))
	if err != nil {
		log.Fatalf("❌ Failed to revoke session: %v", err)
	}
	if !removed {
		fmt.Println("⚠️  No session to revoke.")
		return
	}
	fmt.Printf("✅ Revoked %s session for %s. Outstanding tokens are now rejected.\n", *sessionType, *user)
}

func mustLoad() config.Config {
	cfg := config.Load()
	if err := cfg.RevealSecrets(); err != nil {
		log.Fatalf("Failed to open sealed secrets: %v", err)
	}
	return cfg
}

func openSessions() (*auth.SessionService, func()) {
	cfg := mustLoad()
	store := kvstore.New(kvstore.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	return auth.NewSessionService(store, nil), func() { store.Close() }
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
}
