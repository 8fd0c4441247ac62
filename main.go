package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/pterm/pterm"

	"github.com/blocknetprivacy/proofledger/protocol/params"
)

const Version = "0.1.0"

func main() {
	// Parse command line flags
	dataDir := flag.String("data", DefaultDataDir, "Data directory")
	difficulty := flag.Int("difficulty", params.DefaultDifficulty, "Leading zero hex digits required of block hashes (new chains only)")
	reward := flag.Int64("reward", params.DefaultMiningReward, "Mining reward value (new chains only)")
	threads := flag.Int("threads", 1, "Mining threads")
	noColor := flag.Bool("nocolor", false, "Disable colored output")
	verbose := flag.Bool("v", false, "Verbose (debug) logging")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Usage = func() { printUsage(flag.CommandLine) }
	flag.Parse()

	if *version {
		fmt.Printf("proofledger %s (%s)\n", Version, params.NetworkID)
		return
	}

	difficultySet, rewardSet := false, false
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "difficulty":
			difficultySet = true
		case "reward":
			rewardSet = true
		}
	})

	cfg := DefaultCLIConfig()
	cfg.DataDir = *dataDir
	cfg.Difficulty = *difficulty
	cfg.DifficultySet = difficultySet
	cfg.Reward = *reward
	cfg.RewardSet = rewardSet
	cfg.Threads = *threads
	cfg.NoColor = *noColor
	cfg.Verbose = *verbose

	cli := NewCLI(cfg)
	err := cli.Run(flag.Args())
	if closeErr := cli.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		if errors.Is(err, errUsage) {
			printUsage(flag.CommandLine)
			os.Exit(2)
		}
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
