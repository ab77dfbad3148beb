package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// Serve runs a newline-delimited JSON request/response loop, one response
// per request line. It lets editor integrations and shell hooks drive the
// harness without paying process startup per case.
//
// Commands: ping, version, list, run, verify.

// ServeRequest is one request line.
type ServeRequest struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ServeResponse is one response line.
type ServeResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RunParams parameterizes the run command.
type RunParams struct {
	Case     string   `json:"case"`
	Args     []string `json:"args,omitempty"`
	Hardened bool     `json:"hardened,omitempty"`
}

// VerifyParams parameterizes the verify command.
type VerifyParams struct {
	Names  []string `json:"names,omitempty"`
	Filter string   `json:"filter,omitempty"`
	Limit  int      `json:"limit,omitempty"`
}

// Server wires the serve loop to a runner and a manifest.
type Server struct {
	Runner       *Runner
	Manifest     *Manifest
	ManifestData []byte
}

// Serve reads requests from r until EOF, writing one JSON response per line
// to w. Malformed requests produce an error response and the loop continues.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	// Crash dumps in run responses can get large.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		var req ServeRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			encoder.Encode(ServeResponse{Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}

		encoder.Encode(s.handle(ctx, req))
	}
	return scanner.Err()
}

func (s *Server) handle(ctx context.Context, req ServeRequest) ServeResponse {
	switch req.Command {
	case "ping":
		return ServeResponse{Success: true, Data: map[string]string{
			"status":  "ok",
			"version": HarnessVersion,
		}}

	case "version":
		return ServeResponse{Success: true, Data: map[string]string{
			"version": HarnessVersion,
		}}

	case "list":
		var infos []caseInfoJSON
		for _, c := range AllCases() {
			infos = append(infos, caseInfoJSON{ID: c.ID, Pattern: c.Pattern, Description: c.Description})
		}
		return ServeResponse{Success: true, Data: infos}

	case "run":
		var params RunParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return ServeResponse{Error: fmt.Sprintf("invalid run params: %v", err)}
		}
		if _, ok := LookupCase(params.Case); !ok {
			return ServeResponse{Error: fmt.Sprintf("unknown case: %s", params.Case)}
		}
		out, err := s.Runner.Run(ctx, params.Case, params.Args, params.Hardened)
		if err != nil {
			return ServeResponse{Error: fmt.Sprintf("run error: %v", err)}
		}
		return ServeResponse{Success: true, Data: out}

	case "verify":
		var params VerifyParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return ServeResponse{Error: fmt.Sprintf("invalid verify params: %v", err)}
			}
		}
		entries := FilterEntries(s.Manifest.Cases, params.Names, params.Filter, params.Limit)
		if len(entries) == 0 {
			return ServeResponse{Error: "no manifest entries match"}
		}
		vf := &Verifier{Runner: s.Runner, ManifestData: s.ManifestData}
		verdicts, summary, err := vf.VerifyAll(ctx, entries)
		if err != nil {
			return ServeResponse{Error: fmt.Sprintf("verify error: %v", err)}
		}
		return ServeResponse{Success: true, Data: verifyReportJSON{
			Version: HarnessVersion,
			Results: verdicts,
			Stats:   summary,
		}}

	default:
		return ServeResponse{Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}
