package main

import (
	"bytes"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/sevigo/shot-warden/internal/diff"
)

var (
	diffOut         string
	diffSensitivity float64
)

var diffCmd = &cobra.Command{
	Use:   "diff <base> <compare>",
	Short: "Scores two local screenshots or text snapshots",
	Long: `Scores two local files with the same engine the screenshotDiff workers use.
Images are compared pixel by pixel, text snapshots character by character.
With --out the diff artifact is written to disk.

Examples:
  warden-cli diff base.png compare.png
  warden-cli diff --sensitivity 0 --out mask.png base.png compare.png`,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint <mask.png>",
	Short: "Prints the fingerprint of a diff mask",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		img, err := diff.Decode(f)
		if err != nil {
			return err
		}
		fmt.Println(diff.Fingerprint(img))
		return nil
	},
}

func runDiff(_ *cobra.Command, args []string) error {
	base, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	compare, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	baseText := diff.IsText(http.DetectContentType(base))
	compareText := diff.IsText(http.DetectContentType(compare))
	if baseText != compareText {
		return fmt.Errorf("cannot compare a text snapshot with an image")
	}

	var (
		score    float64
		artifact []byte
		detail   string
	)
	if baseText {
		score = diff.DiffText(string(base), string(compare))
		if score > 0 {
			artifact = diff.TextPatch(string(base), string(compare))
		}
	} else {
		a, err := diff.Decode(bytes.NewReader(base))
		if err != nil {
			return err
		}
		b, err := diff.Decode(bytes.NewReader(compare))
		if err != nil {
			return err
		}
		opts := diff.DefaultOptions()
		opts.Sensitivity = diffSensitivity
		res, err := diff.DiffImages(a, b, opts)
		if err != nil {
			return err
		}
		score = res.Score
		detail = fmt.Sprintf("base pass %.4f, color pass %.4f", res.BaseScore, res.ColorScore)
		if res.Diff != nil {
			artifact = res.Diff.PNG
			detail += fmt.Sprintf(", fingerprint %s", diff.Fingerprint(res.Diff.Mask))
		}
	}

	titleColor.Printf("%s -> %s\n", args[0], args[1])
	if score == 0 {
		successColor.Println("no change detected")
	} else {
		errorColor.Printf("score %.4f\n", score)
	}
	if detail != "" {
		dimColor.Println(detail)
	}

	if diffOut != "" && artifact != nil {
		if err := os.WriteFile(diffOut, artifact, 0o644); err != nil {
			return fmt.Errorf("failed to write artifact: %w", err)
		}
		dimColor.Printf("artifact written to %s (%s)\n", diffOut, diff.Hash(artifact)[:12])
	}
	return nil
}

func init() { //nolint:gochecknoinits // Cobra command registration
	diffCmd.Flags().StringVarP(&diffOut, "out", "o", "", "Write the diff artifact to this file")
	diffCmd.Flags().Float64VarP(&diffSensitivity, "sensitivity", "s", diff.DefaultSensitivity, "Comparison sensitivity in [0,1]")
	rootCmd.AddCommand(diffCmd, fingerprintCmd)
}
