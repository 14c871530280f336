package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/tasker/model/task"
	"github.com/viant/tasker/service/cancel"
)

func TestCommand_Expand(t *testing.T) {
	testCases := []struct {
		name    string
		line    string
		request task.Payload
		expect  string
	}{
		{name: "fields", line: "train --out ${output} --epochs ${epochs}", request: task.Payload{"output": "m.pt", "epochs": 3}, expect: "train --out 'm.pt' --epochs '3'"},
		{name: "quote", line: "echo ${msg}", request: task.Payload{"msg": "it's; rm -rf /"}, expect: `echo 'it'\''s; rm -rf /'`},
		{name: "missing kept", line: "echo ${missing}", request: task.Payload{}, expect: "echo ${missing}"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			command := &Command{Line: tc.line}
			assert.Equal(t, tc.expect, command.Expand(tc.request))
		})
	}
}

func TestCommand_CanceledBeforeLaunch(t *testing.T) {
	token := cancel.NewToken()
	token.Cancel()
	command := &Command{Line: "echo never"}
	_, err := command.Work()(context.Background(), nil, func(float64, string) {}, func(string) {}, token)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCommand_Run(t *testing.T) {
	testCases := []struct {
		name       string
		line       string
		expectErr  bool
		exitStatus int
		expectLogs []string
	}{
		{name: "success", line: "echo hello ${output}", expectLogs: []string{"hello out.txt"}},
		{name: "failure", line: "sh -c 'exit 3'", expectErr: true, exitStatus: 3},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var logs []string
			command := &Command{Line: tc.line}
			result, err := command.Work()(context.Background(), task.Payload{"output": "out.txt"},
				func(float64, string) {}, func(m string) { logs = append(logs, m) }, cancel.NewToken())
			if tc.expectErr {
				var exitErr *ExitError
				require.True(t, errors.As(err, &exitErr))
				assert.Equal(t, tc.exitStatus, exitErr.Status)
				assert.EqualError(t, err, "command exited with status 3")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "out.txt", result["output"])
			assert.Equal(t, 0, result["status"])
			assert.Equal(t, tc.expectLogs, logs)
		})
	}
}
