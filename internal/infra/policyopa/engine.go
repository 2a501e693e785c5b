package policyopa

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"dealroom/internal/domain"
	"dealroom/internal/usecase"
)

const defaultQuery = "data.dealroom.access.decision"

//go:embed bundle/*.rego
var embeddedBundle embed.FS

// Engine evaluates the access rule table written in rego.
type Engine struct {
	query      rego.PreparedEvalQuery
	bundleHash string
}

// NewEngine compiles the bundle shipped with the binary.
func NewEngine(ctx context.Context) (*Engine, error) {
	sub, err := fs.Sub(embeddedBundle, "bundle")
	if err != nil {
		return nil, err
	}
	return NewEngineFromFS(ctx, sub)
}

func NewEngineFromFS(ctx context.Context, fsys fs.FS) (*Engine, error) {
	bundleHash, err := RulesHashFromFS(fsys)
	if err != nil {
		return nil, err
	}
	var options []func(*rego.Rego)
	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		options = append(options, rego.Module(path, string(data)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(options) == 0 {
		return nil, errors.New("policy bundle has no rego modules")
	}
	return prepare(ctx, bundleHash, options...)
}

func NewEngineFromBundlePath(ctx context.Context, bundlePath string) (*Engine, error) {
	bundleHash, err := RulesHashFromPath(bundlePath)
	if err != nil {
		return nil, err
	}
	return prepare(ctx, bundleHash, rego.Load([]string{bundlePath}, nil))
}

func prepare(ctx context.Context, bundleHash string, sources ...func(*rego.Rego)) (*Engine, error) {
	compiler := ast.NewCompiler().WithCapabilities(accessCapabilities())

	opts := []func(*rego.Rego){
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
	}
	opts = append(opts, sources...)
	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare access policy: %w", err)
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &Engine{query: prepared, bundleHash: bundleHash}, nil
}

func (e *Engine) BundleHash() string {
	return e.bundleHash
}

func (e *Engine) Evaluate(ctx context.Context, facts domain.AccessFacts) (domain.Decision, error) {
	if e == nil {
		return domain.Decision{}, errors.New("policy engine is nil")
	}
	facts.Policy = facts.Policy.Normalize()
	results, err := e.query.Eval(ctx, rego.EvalInput(facts))
	if err != nil {
		return domain.Decision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.Decision{}, errors.New("empty access decision")
	}
	return decodeDecision(results[0].Expressions[0].Value)
}

func decodeDecision(value any) (domain.Decision, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return domain.Decision{}, err
	}
	var decision domain.Decision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return domain.Decision{}, err
	}
	switch decision.Verdict {
	case domain.VerdictAllow, domain.VerdictDeny, domain.VerdictPending:
	default:
		return domain.Decision{}, fmt.Errorf("unknown verdict %q", decision.Verdict)
	}
	if decision.Reason == "" {
		return domain.Decision{}, errors.New("access decision missing reason")
	}
	return decision, nil
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	if compiler == nil {
		return errors.New("policy compiler is nil")
	}
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; ok {
				return false
			}
			forbidden[name] = struct{}{}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}

var _ usecase.AccessEvaluator = (*Engine)(nil)
