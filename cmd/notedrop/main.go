package main

import (
	"context"
	"fmt"
	"os"

	"notedrop/internal/core"
)

func main() {
	cmd, err := core.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Usage: notedrop submit <text> | receipt <ref> | verify <ref> <text> | counter")
		os.Exit(1)
	}

	baseURL := os.Getenv("NOTEDROP_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	client := core.NewClient(baseURL)
	ctx := context.Background()

	switch cmd.Kind {
	case core.CmdSubmit:
		resp, err := client.Submit(ctx, cmd.Note)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ %s\n", resp.Message)
		fmt.Printf("Reference:   %s\n", resp.Ref)
		fmt.Printf("Receipt:     %s\n", resp.ReceiptURL)
		fmt.Printf("Counter:     %d\n", resp.Counter)
		fmt.Printf("Remaining today: %d\n", resp.RemainingToday)

	case core.CmdReceipt:
		resp, err := client.Receipt(ctx, cmd.Ref)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Reference:   %s\n", resp.Ref)
		fmt.Printf("Submitted:   %s\n", resp.Timestamp)
		fmt.Printf("Message:     %s\n", resp.Message)
		fmt.Printf("Fingerprint: %s\n", resp.Fingerprint)

	case core.CmdVerify:
		resp, err := client.Verify(ctx, cmd.Ref, cmd.Note)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if resp.Match {
			fmt.Printf("✓ Text matches receipt %s\n", resp.Ref)
		} else {
			fmt.Printf("✗ Text does NOT match receipt %s\n", resp.Ref)
			os.Exit(1)
		}

	case core.CmdCounter:
		resp, err := client.Counter(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Total submissions: %d\n", resp.Counter)
	}
}
