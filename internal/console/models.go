package console

import (
	"encoding/json"
	"fmt"
)

type Employee struct {
	ID        int    `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
}

// DisplayName prefers first/last name, falling back to name and then email.
func (e Employee) DisplayName() string {
	switch {
	case e.FirstName != "" || e.LastName != "":
		if e.LastName == "" {
			return e.FirstName
		}
		if e.FirstName == "" {
			return e.LastName
		}
		return e.FirstName + " " + e.LastName
	case e.Name != "":
		return e.Name
	case e.Email != "":
		return e.Email
	}
	return fmt.Sprintf("employee %d", e.ID)
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// attendanceEnvelope covers consoles that wrap attendance records in an object.
type attendanceEnvelope struct {
	Records []json.RawMessage `json:"attendance_records"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}
