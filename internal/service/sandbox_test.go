package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sandboxStub emulates the ephemeral-sandbox HTTP API for one execution.
type sandboxStub struct {
	mu        sync.Mutex
	files     map[string]string
	execResp  execCommandResponse
	deleted   bool
	execCalls int
}

func newSandboxStub() *sandboxStub {
	return &sandboxStub{
		files:    map[string]string{},
		execResp: execCommandResponse{ExitCode: 0},
	}
}

func (s *sandboxStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/sandboxes":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(createSandboxResponse{ID: "sb-1"})
		case r.Method == http.MethodPost && r.URL.Path == "/sandboxes/sb-1/files":
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			s.files[r.URL.Query().Get("path")] = string(body)
		case r.Method == http.MethodGet && r.URL.Path == "/sandboxes/sb-1/files":
			fmt.Fprint(w, s.files[r.URL.Query().Get("path")])
		case r.Method == http.MethodPost && r.URL.Path == "/sandboxes/sb-1/exec":
			s.execCalls++
			var req execCommandRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "python3 script.py 2>&1", req.Command)
			assert.Equal(t, 30, req.TimeoutSeconds)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(s.execResp)
		case r.Method == http.MethodDelete && r.URL.Path == "/sandboxes/sb-1":
			s.deleted = true
		default:
			t.Errorf("Unexpected sandbox request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newSandboxService(t *testing.T, stub *sandboxStub) *SandboxService {
	t.Helper()
	server := httptest.NewServer(stub.handler(t))
	t.Cleanup(server.Close)
	return NewSandboxService(&SandboxServiceConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
	})
}

func TestSandboxExecute(t *testing.T) {
	stub := newSandboxStub()
	svc := newSandboxService(t, stub)

	// The script's output file is what the stub returns on download.
	stub.files["transformed.csv"] = "name\nALICE\n"

	output, err := svc.Execute(context.Background(), "name\nalice\n", "print('ok')")
	require.NoError(t, err)
	assert.Equal(t, "name\nALICE\n", output)

	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.Equal(t, "name\nalice\n", stub.files["data.csv"])
	assert.Equal(t, "print('ok')", stub.files["script.py"])
	assert.Equal(t, 1, stub.execCalls)
	assert.True(t, stub.deleted)
}

func TestSandboxExecuteScriptFailure(t *testing.T) {
	stub := newSandboxStub()
	stub.execResp = execCommandResponse{ExitCode: 1, Result: "Traceback: KeyError"}
	svc := newSandboxService(t, stub)

	_, err := svc.Execute(context.Background(), "a\n1\n", "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Python script failed:")
	assert.Contains(t, err.Error(), "Traceback: KeyError")

	// Teardown runs on the failure path too.
	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.True(t, stub.deleted)
}

func TestSandboxExecuteEmptyOutput(t *testing.T) {
	stub := newSandboxStub()
	svc := newSandboxService(t, stub)

	stub.files["transformed.csv"] = "   \n"

	_, err := svc.Execute(context.Background(), "a\n1\n", "pass")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty output file")
}
