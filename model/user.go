package model

import "time"

// UserRecord is the account row read from the user store. The Password
// column holds the salted hash, never a plain password.
type UserRecord struct {
	UserID     int64             `json:"user_id"`
	Username   string            `json:"username"`
	Password   string            `json:"-"`
	FirstName  string            `json:"first_name,omitempty"`
	LastName   string            `json:"last_name,omitempty"`
	Email      string            `json:"email,omitempty"`
	Enabled    bool              `json:"is_active"`
	Superuser  bool              `json:"is_superuser"`
	Title      string            `json:"title,omitempty"`
	LastLogin  *time.Time        `json:"last_login,omitempty"`
	Groups     []string          `json:"groups,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Column returns a record column by its canonical name, used by the
// configurable user-data mapping. Unknown columns return nil.
func (u *UserRecord) Column(name string) any {
	switch name {
	case "user_id":
		return u.UserID
	case "username":
		return u.Username
	case "password":
		return u.Password
	case "first_name":
		return u.FirstName
	case "last_name":
		return u.LastName
	case "email":
		return u.Email
	case "is_active":
		return u.Enabled
	case "is_superuser":
		return u.Superuser
	case "title":
		return u.Title
	case "last_login":
		if u.LastLogin == nil {
			return nil
		}
		return u.LastLogin
	case "groups":
		return u.Groups
	default:
		if u.Attributes != nil {
			if v, ok := u.Attributes[name]; ok {
				return v
			}
		}
		return nil
	}
}

// APIKeyRecord is a device-scoped API key row.
type APIKeyRecord struct {
	UserID   int64  `json:"user_id"`
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Token    string `json:"token"`
	Revoked  bool   `json:"revoked"`
}

// SessionData is the serialized session payload kept in the session store.
type SessionData map[string]any
