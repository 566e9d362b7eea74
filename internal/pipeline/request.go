package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ppiankov/sourcecheck/internal/config"
	"github.com/ppiankov/sourcecheck/internal/model"
)

// RequestFile is the on-disk form of a verification request. The source may
// be inlined or referenced; SchemaFile and PolicyFile let many requests share
// one schema and policy. Referenced paths resolve against the request file's
// directory.
type RequestFile struct {
	SourceText string          `json:"source_text"`
	SourceFile string          `json:"source_file,omitempty"`
	Claims     json.RawMessage `json:"claims"`
	Schema     json.RawMessage `json:"schema,omitempty"`
	SchemaFile string          `json:"schema_file,omitempty"`
	Policies   json.RawMessage `json:"policies,omitempty"`
	PolicyFile string          `json:"policy_file,omitempty"`
}

// LoadRequestFile reads a request file and resolves its references
func LoadRequestFile(path string) (Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Request{}, model.Wrap(model.KindInput, "", "read request file", err)
	}

	var rf RequestFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return Request{}, model.Wrap(model.KindInput, "", "malformed request file", err)
	}

	base := filepath.Dir(path)
	req := Request{
		SourceText: rf.SourceText,
		Claims:     rf.Claims,
		Schema:     rf.Schema,
		Policies:   rf.Policies,
	}

	if rf.SourceFile != "" {
		text, err := os.ReadFile(resolve(base, rf.SourceFile))
		if err != nil {
			return Request{}, model.Wrap(model.KindInput, "source_file", "read source file", err)
		}
		req.SourceText = string(text)
	}

	if rf.SchemaFile != "" {
		schema, err := config.LoadSchemaFile(resolve(base, rf.SchemaFile))
		if err != nil {
			return Request{}, err
		}
		req.Schema = schema
	}

	if rf.PolicyFile != "" {
		policy, err := config.LoadPolicyFile(resolve(base, rf.PolicyFile))
		if err != nil {
			return Request{}, err
		}
		req.Policies = policy
	} else if len(rf.Policies) == 0 {
		req.Policies = model.DefaultPolicy()
	}

	return req, nil
}

// VerifyFile loads a request file and runs it
func (e *Engine) VerifyFile(ctx context.Context, path string) (*model.Report, error) {
	req, err := LoadRequestFile(path)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, req)
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
