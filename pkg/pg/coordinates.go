package pg

import (
	"net"
	"net/url"
	"strconv"
)

// Coordinates locate one physical database.
type Coordinates struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"-"`
	SSLMode  string `json:"ssl_mode,omitempty"`
}

// ConnString renders the coordinates as a postgres URL.
func (c Coordinates) ConnString() string {
	port := c.Port
	if port == 0 {
		port = 5432
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(port)),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}

	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u.RawQuery = url.Values{"sslmode": []string{sslMode}}.Encode()

	return u.String()
}

// Redacted returns the connection string with the password masked, for logs.
func (c Coordinates) Redacted() string {
	if c.Password != "" {
		c.Password = "xxxxx"
	}
	return c.ConnString()
}
