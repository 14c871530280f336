package criteria

import (
	"github.com/viant/tasker/service/dao"
)

// FilterByStatus returns true when status matches the status parameter, or
// when no status parameter was supplied.
func FilterByStatus(status string, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != dao.StatusParameter {
			continue
		}
		switch actual := parameter.Value.(type) {
		case string:
			return status == actual
		case []string:
			for _, candidate := range actual {
				if status == candidate {
					return true
				}
			}
			return false
		}
	}
	return true
}
