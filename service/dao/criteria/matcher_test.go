package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/tasker/service/dao"
)

func TestFilterByStatus(t *testing.T) {
	testCases := []struct {
		name       string
		status     string
		parameters []*dao.Parameter
		expected   bool
	}{
		{name: "no parameters", status: "running", expected: true},
		{name: "single match", status: "running", parameters: []*dao.Parameter{dao.NewParameter(dao.StatusParameter, "running")}, expected: true},
		{name: "single mismatch", status: "queued", parameters: []*dao.Parameter{dao.NewParameter(dao.StatusParameter, "running")}, expected: false},
		{name: "any of", status: "queued", parameters: []*dao.Parameter{dao.NewParameter(dao.StatusParameter, "running", "queued")}, expected: true},
		{name: "other parameter ignored", status: "queued", parameters: []*dao.Parameter{dao.NewParameter("Kind", "x")}, expected: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, FilterByStatus(tc.status, tc.parameters))
		})
	}
}
