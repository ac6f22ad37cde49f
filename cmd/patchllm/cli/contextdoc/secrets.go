package contextdoc

import (
	"fmt"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// ScanForSecrets runs the gitleaks default ruleset over every included
// file and appends a warning per finding. The scan never blocks assembly;
// the operator decides whether a flagged document still leaves the machine.
func (d *Document) ScanForSecrets() error {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return fmt.Errorf("failed to load secret detection rules: %w", err)
	}
	for _, f := range d.Files {
		findings := detector.Detect(detect.Fragment{
			Raw:      string(f.Content),
			FilePath: f.Path,
		})
		for _, finding := range findings {
			d.Warnings = append(d.Warnings,
				fmt.Sprintf("possible secret in %s:%d (%s)", f.Path, finding.StartLine+1, finding.RuleID))
		}
	}
	return nil
}
