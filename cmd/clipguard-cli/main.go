package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tesseramedia/clipguard/internal/policy"
	"github.com/tesseramedia/clipguard/internal/tooling/validation"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "clipguard-cli: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer, stderr io.Writer) error {
	if len(args) == 0 || isHelpFlag(args[0]) {
		printUsage(stdout)
		return nil
	}

	switch args[0] {
	case "validate-fixtures":
		fixtureRoot := filepath.Join("test", "contract", "fixtures")
		if len(args) >= 2 {
			fixtureRoot = args[1]
		}
		summary, err := validation.ValidateSessionFixtures(fixtureRoot)
		if err != nil {
			return fmt.Errorf("fixture validation failed to execute: %w", err)
		}
		fmt.Fprintln(stdout, validation.RenderSummary(summary))
		if summary.Failed > 0 {
			return fmt.Errorf("%d fixture(s) failed validation", summary.Failed)
		}
		return nil
	case "validate-rules":
		if len(args) < 2 {
			return fmt.Errorf("validate-rules requires <rule_path> [mode]")
		}
		mode := ""
		if len(args) >= 3 {
			mode = args[2]
		}
		if err := validation.ValidateRuleFile(args[1], mode); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "rule document ok: %s\n", args[1])
		return nil
	case "resolve":
		if len(args) < 4 {
			return fmt.Errorf("resolve requires <platform> <rating> <region> [rule_path]")
		}
		resolver := policy.NewResolver()
		if len(args) >= 5 {
			rules, err := policy.LoadRuleSet(args[4])
			if err != nil {
				return err
			}
			resolver = policy.NewResolverWithRules(rules)
		}
		profile := resolver.Resolve(policy.Selector{
			Platform: args[1],
			Rating:   args[2],
			Region:   args[3],
		})
		return writeJSON(stdout, struct {
			ProfileName string                            `json:"profile_name"`
			Rules       map[policy.Category]policy.Action `json:"rules"`
		}{
			ProfileName: profile.Name,
			Rules:       profile.Rules,
		})
	case "categories":
		return writeJSON(stdout, policy.Categories())
	default:
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func isHelpFlag(arg string) bool {
	switch arg {
	case "help", "-h", "--help":
		return true
	default:
		return false
	}
}

func writeJSON(w io.Writer, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, string(payload))
	return nil
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "clipguard-cli usage:")
	_, _ = fmt.Fprintln(w, "  clipguard-cli validate-fixtures [fixture_root]")
	_, _ = fmt.Fprintln(w, "  clipguard-cli validate-rules <rule_path> [strict|relaxed]")
	_, _ = fmt.Fprintln(w, "  clipguard-cli resolve <platform> <rating> <region> [rule_path]")
	_, _ = fmt.Fprintln(w, "  clipguard-cli categories")
}
