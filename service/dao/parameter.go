package dao

// StatusParameter is the parameter name used to filter records by status.
const StatusParameter = "Status"

// Parameter narrows List results.
type Parameter struct {
	Name  string
	Value interface{}
}

// NewParameter creates a parameter; a single value is stored as string,
// several as []string.
func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}

// Statuses returns the status values carried by parameters, if any.
func Statuses(parameters []*Parameter) []string {
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != StatusParameter {
			continue
		}
		switch actual := parameter.Value.(type) {
		case string:
			return []string{actual}
		case []string:
			return actual
		}
	}
	return nil
}
