package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"
)

// HTTPToolSpec describes one generic outbound HTTP tool: a declarative
// tool backed by an HTTP call whose URL, headers, and body are
// text/template strings interpolated with the tool's argument map.
type HTTPToolSpec struct {
	Name        string
	Description string
	Method      string
	URL         string
	Headers     map[string]string
	Body        string
	Parameters  map[string]ParamSchema
	Phase       Phase
	Timeout     time.Duration
	Client      *http.Client
}

func renderTemplate(name, text string, args map[string]any) (string, error) {
	if text == "" {
		return "", nil
	}
	t, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("tool %s: template parse: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, args); err != nil {
		return "", fmt.Errorf("tool %s: template exec: %w", name, err)
	}
	return buf.String(), nil
}

// HTTPDefinition compiles an HTTPToolSpec into a Definition whose Execute
// renders the URL/headers/body templates against the invocation args, issues
// the request, and folds the response into a Result.
func HTTPDefinition(spec HTTPToolSpec) Definition {
	client := spec.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}
	phase := spec.Phase
	if phase == "" {
		phase = PhaseInCall
	}

	exec := func(ctx context.Context, args map[string]any) (Result, error) {
		url, err := renderTemplate(spec.Name+":url", spec.URL, args)
		if err != nil {
			return Result{Status: StatusError, Message: err.Error()}, nil
		}
		body, err := renderTemplate(spec.Name+":body", spec.Body, args)
		if err != nil {
			return Result{Status: StatusError, Message: err.Error()}, nil
		}

		var bodyReader io.Reader
		if body != "" {
			bodyReader = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return Result{Status: StatusError, Message: err.Error()}, nil
		}
		for k, v := range spec.Headers {
			rendered, err := renderTemplate(spec.Name+":header:"+k, v, args)
			if err != nil {
				return Result{Status: StatusError, Message: err.Error()}, nil
			}
			req.Header.Set(k, rendered)
		}

		resp, err := client.Do(req)
		if err != nil {
			return Result{Status: StatusFailed, Message: err.Error()}, nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return Result{Status: StatusFailed, Message: err.Error()}, nil
		}

		data := map[string]any{
			"status_code": resp.StatusCode,
			"body":        string(respBody),
		}
		var parsed any
		if json.Unmarshal(respBody, &parsed) == nil {
			data["json"] = parsed
		}

		if resp.StatusCode >= 400 {
			return Result{Status: StatusFailed, Message: fmt.Sprintf("http %d", resp.StatusCode), Data: data}, nil
		}
		return Result{Status: StatusSuccess, Message: "ok", Data: data}, nil
	}

	return Definition{
		Name:        spec.Name,
		Description: spec.Description,
		Parameters:  spec.Parameters,
		Category:    "http",
		Phase:       phase,
		Timeout:     spec.Timeout,
		Execute:     exec,
	}
}
