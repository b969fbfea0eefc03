package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"grimm.is/wlanctl/internal/brand"
)

// LoadFile loads configuration from an HCL file.
// A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadHCL(data, path)
}

// LoadHCL decodes HCL bytes, fills defaults and validates the result.
func LoadHCL(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL parse error: %s", diags.Error())
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, evalContext(), &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL decode error: %s", diags.Error())
	}

	cfg.applyDefaults()

	if errs := cfg.Validate(); errs.HasErrors() {
		return nil, errs
	}
	return &cfg, nil
}

// evalContext exposes the process environment and brand directories to
// expressions, e.g. socket_dir = "${run_dir}/wpa".
func evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = cty.StringVal(v)
	}
	envVal := cty.EmptyObjectVal
	if len(env) > 0 {
		envVal = cty.ObjectVal(env)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env":       envVal,
			"state_dir": cty.StringVal(brand.GetStateDir()),
			"run_dir":   cty.StringVal(brand.GetRunDir()),
		},
	}
}
