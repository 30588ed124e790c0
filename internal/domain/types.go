// Package domain defines the core types shared by the authentication state
// machine and the API surface.
package domain

import "strconv"

// User is the public view of an account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// StoredUser is the record kept per username. Password is "salt$hexkey".
type StoredUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Public strips the password hash.
func (u *StoredUser) Public() *User {
	return &User{ID: u.ID, Username: u.Username}
}

// State is the authentication state of a request.
type State string

const (
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// BaseState is the authentication state without the action menu.
type BaseState struct {
	State State `json:"state"`
	User  *User `json:"user,omitempty"`
}

// FieldType is how a UI should render an input.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldPassword FieldType = "password"
)

// Field describes one input of an Action.
type Field struct {
	Label      string    `json:"label"`
	Type       FieldType `json:"type"`
	IsRequired bool      `json:"isRequired,omitempty"`
}

// Action is a transition the client may request next.
type Action struct {
	Key         string           `json:"key"`
	Name        string           `json:"name"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	Message     string           `json:"message,omitempty"`
	Fields      map[string]Field `json:"fields,omitempty"`
	Buttons     []string         `json:"buttons,omitempty"`
}

// MachineState is a BaseState plus the actions available from it.
type MachineState struct {
	BaseState
	Message string            `json:"message,omitempty"`
	Actions map[string]Action `json:"actions"`
}

// Input is a request to perform an Action.
type Input struct {
	Key    string         `json:"key"`
	Inputs map[string]any `json:"inputs,omitempty"`
	Verb   string         `json:"verb,omitempty"`
}

// String returns inputs[name] when it is a non-empty string, bool true or a
// non-zero number, rendered as text; otherwise "".
func (in Input) String(name string) string {
	switch v := in.Inputs[name].(type) {
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
	case float64:
		if v != 0 {
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// AuthError is a user-facing validation or domain error.
type AuthError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// StateResult is either a MachineState or a list of errors.
type StateResult struct {
	*MachineState
	Errors []AuthError `json:"errors,omitempty"`
}

// Failed reports whether the result carries errors instead of a state.
func (r *StateResult) Failed() bool {
	return len(r.Errors) > 0
}
