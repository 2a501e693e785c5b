package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"dealroom/internal/infra/bundles"
)

func runAuditVerify(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "audit verify requires <audit_bundle.json>")
		return 1
	}
	payload, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "read bundle: %v\n", err)
		return 1
	}
	bundle, err := bundles.ParseJSON(payload)
	if err != nil {
		fmt.Fprintf(stderr, "decode bundle: %v\n", err)
		return 1
	}
	result, err := bundles.Verify(bundle)
	if err != nil {
		fmt.Fprintf(stderr, "verify bundle: %v\n", err)
		return 1
	}

	status := "pass"
	if !result.Passed {
		status = "fail"
	}
	fmt.Fprintf(stdout, "status=%s\n", status)
	if len(result.Failures) > 0 {
		fmt.Fprintf(stdout, "failures=%s\n", strings.Join(result.Failures, ","))
	}
	if !result.Chain.Valid {
		fmt.Fprintf(stdout, "chain.failed_seq=%d chain.problem=%q\n", result.Chain.FailedSeq, result.Chain.Problem)
	}
	fmt.Fprintf(stdout, "document=%s policy=%s events=%d head_seq=%d head_hash=%s\n",
		bundle.Document.ID, bundle.Document.Policy, len(bundle.Events), bundle.HeadSeq, bundle.HeadHash)
	if bundle.Evaluator != "" || bundle.RulesHash != "" {
		fmt.Fprintf(stdout, "rules.evaluator=%s rules.hash=%s\n", bundle.Evaluator, bundle.RulesHash)
	}
	if result.Passed {
		return 0
	}
	return 1
}
