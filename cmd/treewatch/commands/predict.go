package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/branchbound/treewatch/internal/forest"
)

// ErrNoFeatures is returned when the --features flag is not set.
var ErrNoFeatures = errors.New("a feature vector is required (use --features)")

// NewPredictCommand creates the predict subcommand. It loads a regression
// forest file and evaluates it on a comma-separated feature vector.
func NewPredictCommand() *cobra.Command {
	var featuresFlag string

	cmd := &cobra.Command{
		Use:   "predict <forest-file>",
		Short: "Evaluate a regression forest on a feature vector",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if featuresFlag == "" {
				return ErrNoFeatures
			}

			features, err := parseFeatures(featuresFlag)
			if err != nil {
				return err
			}

			rf, err := forest.FromFile(args[0])
			if err != nil {
				return fmt.Errorf("load forest: %w", err)
			}

			if len(features) != rf.Dim() {
				return fmt.Errorf("forest expects %d features, got %d", rf.Dim(), len(features))
			}

			fmt.Fprintf(os.Stdout, "%g\n", rf.Predict(features))

			return nil
		},
	}

	cmd.Flags().StringVarP(&featuresFlag, "features", "f", "", "comma-separated feature values")

	return cmd
}

func parseFeatures(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	features := make([]float64, 0, len(parts))

	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("parse feature %q: %w", part, err)
		}

		features = append(features, v)
	}

	return features, nil
}
