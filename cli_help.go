package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"

	"github.com/blocknetprivacy/proofledger/protocol/params"
)

type helpEntry struct {
	usage         []string
	aliases       []string
	description   []string
	useWhen       []string
	exampleInput  []string
	exampleOutput []string
	notes         []string
}

func normalizeHelpTopic(topic string) string {
	switch strings.ToLower(topic) {
	case "help", "?":
		return "help"
	case "keygen":
		return "keygen"
	case "address", "addr":
		return "address"
	case "send":
		return "send"
	case "mine":
		return "mine"
	case "validate", "verify":
		return "validate"
	case "score":
		return "score"
	case "balance", "bal":
		return "balance"
	case "history", "hist":
		return "history"
	case "blocks":
		return "blocks"
	case "pending":
		return "pending"
	case "demo":
		return "demo"
	default:
		return ""
	}
}

func helpCommandDetails() map[string]helpEntry {
	return map[string]helpEntry{
		"help": {
			usage:        []string{"help", "help <command>"},
			aliases:      []string{"?"},
			description:  []string{"Shows all commands or detailed help for one command."},
			exampleInput: []string{"$ proofledger help send"},
		},
		"keygen": {
			usage:         []string{"keygen [-key file]"},
			description:   []string{"Creates a new signing key and stores it in a password-encrypted key file."},
			useWhen:       []string{"you need an address to send from or to receive mining rewards"},
			exampleInput:  []string{"$ proofledger keygen -key alice.key"},
			exampleOutput: []string{"SUCCESS  Key file created: alice.key", " INFO    Address: 02a1...", " INFO    Display: 3mJr..."},
			notes: []string{
				"an existing key file is never overwritten",
				"set " + PasswordEnv + " to skip the password prompt",
			},
		},
		"address": {
			usage:       []string{"address [-key file]"},
			aliases:     []string{"addr"},
			description: []string{"Prints the hex and base58 forms of a key file's address."},
			notes:       []string{"either form is accepted wherever an address is expected"},
		},
		"send": {
			usage:        []string{"send -key file -to addr -value n"},
			description:  []string{"Signs a transfer with the key file and queues it for the next block."},
			exampleInput: []string{"$ proofledger send -key alice.key -to 3mJr... -value 3"},
			notes: []string{
				fmt.Sprintf("value must be between %d and %d", params.MinTransferValue, params.MaxTransferValue),
				"the record is not sealed until someone runs 'mine'",
			},
		},
		"mine": {
			usage:       []string{"mine -key file", "mine -reward-to addr"},
			description: []string{"Seals every pending record into a new block and queues a reward for the miner."},
			useWhen:     []string{"pending records are waiting, or you want to collect your previous reward"},
			notes: []string{
				"the reward is sealed by the next mine, not this one",
				"Ctrl-C stops the search and leaves the chain unchanged",
				"-threads on the main command line splits the nonce search",
			},
		},
		"validate": {
			usage:         []string{"validate"},
			aliases:       []string{"verify"},
			description:   []string{"Re-checks every block: signatures, hashes, proof of work, and links."},
			exampleOutput: []string{"SUCCESS  Chain is valid (4 blocks, difficulty 4)"},
			notes:         []string{"the stored tip must also match the last loaded block"},
		},
		"score": {
			usage:       []string{"score <addr>"},
			description: []string{"Average value of the sealed records an address received."},
			notes:       []string{"0 when the address has received nothing"},
		},
		"balance": {
			usage:       []string{"balance <addr>"},
			aliases:     []string{"bal"},
			description: []string{"Value received minus value sent, over sealed records."},
		},
		"history": {
			usage:       []string{"history <addr>"},
			aliases:     []string{"hist"},
			description: []string{"Lists sealed records sent or received by an address."},
		},
		"blocks": {
			usage:       []string{"blocks"},
			description: []string{"Lists every block from genesis to the tip."},
		},
		"pending": {
			usage:       []string{"pending"},
			description: []string{"Lists records waiting for the next block."},
		},
		"demo": {
			usage:       []string{"demo"},
			description: []string{"Runs a walkthrough on a throwaway in-memory chain: two keys, two transfers, two blocks."},
			notes:       []string{"nothing is written to the data directory"},
		},
	}
}

func printHelpTopic(topic string) {
	entry, ok := helpCommandDetails()[topic]
	if !ok {
		pterm.Error.Printfln("No detailed help available for: %s", topic)
		return
	}

	label := func(s string) string { return pterm.LightGreen(s) }

	pterm.DefaultSection.Println("Help: " + topic)
	fmt.Printf("  %s:\n", label("Usage"))
	for _, line := range entry.usage {
		fmt.Printf("    proofledger %s\n", line)
	}
	if len(entry.aliases) > 0 {
		fmt.Println()
		fmt.Printf("  %s:\n", label("Short name"))
		fmt.Printf("    %s\n", strings.Join(entry.aliases, ", "))
	}

	fmt.Println()
	fmt.Printf("  %s:\n", label("What it does"))
	for _, line := range entry.description {
		fmt.Printf("    %s\n", line)
	}

	if len(entry.useWhen) > 0 {
		fmt.Println()
		fmt.Printf("  %s:\n", label("Use this when"))
		for _, line := range entry.useWhen {
			fmt.Printf("    %s\n", line)
		}
	}

	if len(entry.exampleInput) > 0 {
		fmt.Println()
		fmt.Printf("  %s:\n", label("Example input"))
		for _, line := range entry.exampleInput {
			fmt.Printf("    %s\n", line)
		}
	}

	if len(entry.exampleOutput) > 0 {
		fmt.Println()
		fmt.Printf("  %s:\n", label("Example output"))
		for _, line := range entry.exampleOutput {
			fmt.Printf("    %s\n", line)
		}
	}

	if len(entry.notes) > 0 {
		fmt.Println()
		fmt.Printf("  %s:\n", label("Notes"))
		for _, line := range entry.notes {
			fmt.Printf("    %s %s\n", label("-"), line)
		}
	}
}

// printUsage lists commands. When fs is given its flag defaults follow.
func printUsage(fs *flag.FlagSet) {
	fmt.Printf(`Usage: proofledger [flags] <command> [args]

%s
  keygen   [-key file]                 Create an encrypted key file
  address  [-key file]                 Show a key file's address
  send     -key file -to addr -value n Sign and queue a transfer
  mine     -key file | -reward-to addr Seal pending records into a block

%s
  validate                             Check chain integrity
  score    <addr>                      Average value received
  balance  <addr>                      Received minus sent
  history  <addr>                      Records sent or received
  blocks                               List blocks
  pending                              List pending records
  demo                                 In-memory walkthrough
  help     <command>                   Show detailed help for a command
`, pterm.Bold.Sprint("Keys and records"), pterm.Bold.Sprint("Chain"))

	if fs != nil {
		fmt.Println("\nFlags:")
		fs.SetOutput(os.Stdout)
		fs.PrintDefaults()
	}
}
