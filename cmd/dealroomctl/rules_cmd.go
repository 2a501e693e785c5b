package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"dealroom/internal/domain"
	"dealroom/internal/infra/policyopa"
)

// runRulesEval evaluates one set of facts with both the built-in rule table
// and the rego rules, and fails when they disagree.
func runRulesEval(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("rules eval", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	var facts domain.AccessFacts
	policy := fs.String("policy", "", "document policy")
	fs.BoolVar(&facts.Anonymous, "anonymous", false, "requester is anonymous")
	fs.BoolVar(&facts.Owner, "owner", false, "requester belongs to the owning organization")
	fs.BoolVar(&facts.Admin, "admin", false, "requester is an administrator")
	fs.BoolVar(&facts.OnAllowList, "allow-listed", false, "requester is on the allow list")
	fs.BoolVar(&facts.HasAcceptedRequest, "accepted", false, "requester has an accepted request")
	fs.BoolVar(&facts.HasPendingRequest, "pending", false, "requester has a pending request")
	bundlePath := fs.String("bundle", "", "rego bundle directory (default: built-in rules)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	facts.Policy = domain.Policy(*policy)

	ctx := context.Background()
	var (
		engine *policyopa.Engine
		err    error
	)
	if *bundlePath != "" {
		engine, err = policyopa.NewEngineFromBundlePath(ctx, *bundlePath)
	} else {
		engine, err = policyopa.NewEngine(ctx)
	}
	if err != nil {
		fmt.Fprintf(stderr, "load rules: %v\n", err)
		return 1
	}
	rego, err := engine.Evaluate(ctx, facts)
	if err != nil {
		fmt.Fprintf(stderr, "evaluate rules: %v\n", err)
		return 1
	}
	native := domain.EvaluateAccess(facts)

	fmt.Fprintf(stdout, "policy=%s rules.hash=%s\n", facts.Policy.Normalize(), engine.BundleHash())
	fmt.Fprintf(stdout, "native.verdict=%s native.reason=%s\n", native.Verdict, native.Reason)
	fmt.Fprintf(stdout, "rego.verdict=%s rego.reason=%s\n", rego.Verdict, rego.Reason)
	if rego != native {
		fmt.Fprintln(stdout, "status=mismatch")
		return 1
	}
	fmt.Fprintln(stdout, "status=match")
	return 0
}
