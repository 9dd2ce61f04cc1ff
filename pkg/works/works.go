// Package works provides generic work functions that move or summarize artifacts
// without knowing their format. They are useful for wiring and smoke-testing a
// stage graph before the real computations are bound.
package works

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/aretw0/baton/pkg/domain"
	"github.com/aretw0/baton/pkg/registry"
)

// Param names understood by the built-in work functions.
const (
	ParamOutput  = "output"
	ParamPayload = "payload"
)

// Register adds every built-in work function to reg.
func Register(reg *registry.Registry) {
	reg.Register("noop", Noop)
	reg.Register("copy", Copy)
	reg.Register("concat", Concat)
	reg.Register("digest", Digest)
	reg.Register("emit", Emit)
}

// Noop produces no outputs.
func Noop(ctx context.Context, req domain.WorkRequest) (domain.WorkResult, error) {
	return domain.WorkResult{}, nil
}

// Copy forwards every input to an output of the same kind.
func Copy(ctx context.Context, req domain.WorkRequest) (domain.WorkResult, error) {
	out := make(map[string][]byte, len(req.Inputs))
	for _, in := range req.Inputs {
		data, err := payload(in)
		if err != nil {
			return domain.WorkResult{}, err
		}
		out[in.Ref.Kind] = data
	}
	return domain.WorkResult{Outputs: out}, nil
}

// Concat joins all inputs, in order, into the output named by the "output" param,
// or the stage's first declared output.
func Concat(ctx context.Context, req domain.WorkRequest) (domain.WorkResult, error) {
	kind := outputKind(req)
	var buf bytes.Buffer
	for _, in := range req.Inputs {
		data, err := payload(in)
		if err != nil {
			return domain.WorkResult{}, err
		}
		buf.Write(data)
	}
	return domain.WorkResult{Outputs: map[string][]byte{kind: buf.Bytes()}}, nil
}

// Digest writes the hex SHA-256 of every input, one line per input, to the "output" param.
func Digest(ctx context.Context, req domain.WorkRequest) (domain.WorkResult, error) {
	kind := outputKind(req)
	var buf bytes.Buffer
	for _, in := range req.Inputs {
		data, err := payload(in)
		if err != nil {
			return domain.WorkResult{}, err
		}
		sum := sha256.Sum256(data)
		fmt.Fprintf(&buf, "%s  %s\n", hex.EncodeToString(sum[:]), in.Ref)
	}
	return domain.WorkResult{Outputs: map[string][]byte{kind: buf.Bytes()}}, nil
}

// Emit writes the "payload" param to the "output" param. It seeds a pipeline from
// invocation input.
func Emit(ctx context.Context, req domain.WorkRequest) (domain.WorkResult, error) {
	p, ok := req.Params[ParamPayload]
	if !ok {
		return domain.WorkResult{}, fmt.Errorf("emit: %q param is required", ParamPayload)
	}
	return domain.WorkResult{Outputs: map[string][]byte{outputKind(req): []byte(p)}}, nil
}

func outputKind(req domain.WorkRequest) string {
	if k := req.Params[ParamOutput]; k != "" {
		return k
	}
	if len(req.Outputs) > 0 {
		return req.Outputs[0].Kind
	}
	return "result"
}

func payload(a domain.Artifact) ([]byte, error) {
	if a.Path == "" {
		return a.Payload, nil
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a.Ref, err)
	}
	return data, nil
}
