package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(args, stderr)
		return 1
	}

	switch args[1] {
	case "audit":
		if len(args) >= 3 && args[2] == "verify" {
			return runAuditVerify(args[3:], stdout, stderr)
		}
	case "token":
		return runToken(args[2:], stdout, stderr)
	case "rules":
		if len(args) >= 3 && args[2] == "eval" {
			return runRulesEval(args[3:], stdout, stderr)
		}
	}

	usage(args, stderr)
	return 1
}

func usage(args []string, stderr io.Writer) {
	name := "dealroomctl"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(stderr, "usage:\n")
	fmt.Fprintf(stderr, "  %s audit verify <audit_bundle.json>\n", name)
	fmt.Fprintf(stderr, "  %s token --subject <id> [--org <id>] [--role <role>]... [--ttl 1h] [--env-file .env]\n", name)
	fmt.Fprintf(stderr, "  %s rules eval --policy <policy> [--anonymous] [--owner] [--admin] [--allow-listed] [--accepted] [--pending] [--bundle <dir>]\n", name)
}
