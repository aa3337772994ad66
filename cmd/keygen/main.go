package main

import (
	"fmt"
	"os"

	"github.com/Jeffreasy/LaventeCareGateway/internal/crypto"
)

// keygen prints a fresh bearer token secret and a key for sealing config secrets.
func main() {
	jweSecret, err := crypto.GenerateKey()
	if err != nil {
		fmt.Printf("Failed to generate key: %v\n", err)
		os.Exit(1)
	}
	secretsKey, err := crypto.GenerateKey()
	if err != nil {
		fmt.Printf("Failed to generate key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("--- COPY BELOW TO .env.local ---")
	fmt.Printf("JWE_SECRET=%s\n", jweSecret)
	fmt.Printf("SECRETS_KEY=%s\n", secretsKey)
	fmt.Println("--------------------------------")
}
