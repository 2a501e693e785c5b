package policyopa

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io/fs"
	"os"
	"path"
	"strings"
)

// rulesDigest is what RulesHash commits to: the decision query plus every
// rego module by relative path. Audit bundles record it as rules_hash.
type rulesDigest struct {
	Query   string            `json:"query"`
	Modules map[string]string `json:"modules"`
}

func RulesHashFromPath(dir string) (string, error) {
	return RulesHashFromFS(os.DirFS(dir))
}

// RulesHashFromFS returns "sha256:<hex>" for the rego modules under fsys.
// Hidden directories and non-rego files are ignored, so the embedded bundle
// and the same files on disk hash identically.
func RulesHashFromFS(fsys fs.FS) (string, error) {
	digest := rulesDigest{Query: defaultQuery, Modules: map[string]string{}}
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if path.Ext(p) != ".rego" {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		digest.Modules[p] = sha256Hex(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	canonical, err := json.Marshal(digest)
	if err != nil {
		return "", err
	}
	return "sha256:" + sha256Hex(canonical), nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
