package main

import (
	"os"

	"github.com/spf13/cobra"

	"zkpledge/circuits/donation"
)

// setupRun compiles the donation circuit and runs the Groth16 trusted setup,
// writing the constraint system and key artifacts the local proving backend
// loads at startup.
func setupRun(outputDir string) {
	logger := commonRun()
	if outputDir == "" {
		outputDir = loadConfig(logger).ArtifactDir
	}

	logger.Info(
		"compiling donation circuit and generating keys",
		"component", programName,
	)
	keys, err := donation.Setup()
	if err != nil {
		logger.Error("circuit setup failed: " + err.Error())
		os.Exit(1)
	}
	logger.Info(
		"circuit compiled",
		"component", programName,
		"constraints", keys.CCS.GetNbConstraints(),
	)

	if err := donation.WriteArtifacts(outputDir, keys); err != nil {
		logger.Error("failed to write artifacts: " + err.Error())
		os.Exit(1)
	}
	logger.Info(
		"artifacts written",
		"component", programName,
		"dir", outputDir,
	)
}

func setupCommand() *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Generate circuit artifacts for the local proving backend",
		Run: func(cmd *cobra.Command, args []string) {
			setupRun(outputDir)
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory to write circuit artifacts (default: configured artifact dir)")
	return cmd
}
