package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Record is the field set pushed to a CRM. Connectors map it onto their
// own schema.
type Record struct {
	Email      string `json:"email"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Company    string `json:"company,omitempty"`
	Title      string `json:"title,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// Connector is one CRM target. FindByEmail returns (nil, nil) when no
// record exists.
type Connector interface {
	Name() string
	FindByEmail(ctx context.Context, email string) (*Record, error)
	Create(ctx context.Context, record *Record) error
	Update(ctx context.Context, record *Record) error
}

// RESTConnector talks to a CRM exposing a conventional contacts REST
// surface (GET /contacts?email=, POST /contacts, PATCH /contacts).
type RESTConnector struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRESTConnector creates a new instance of RESTConnector
func NewRESTConnector(name, baseURL, apiKey string) *RESTConnector {
	return &RESTConnector{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *RESTConnector) Name() string {
	return c.name
}

func (c *RESTConnector) FindByEmail(ctx context.Context, email string) (*Record, error) {
	endpoint := fmt.Sprintf("%s/contacts?email=%s", c.baseURL, url.QueryEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s lookup failed: %v", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s lookup returned status %d", c.name, resp.StatusCode)
	}

	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("%s lookup returned bad payload: %v", c.name, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (c *RESTConnector) Create(ctx context.Context, record *Record) error {
	return c.send(ctx, http.MethodPost, c.baseURL+"/contacts", record)
}

func (c *RESTConnector) Update(ctx context.Context, record *Record) error {
	endpoint := fmt.Sprintf("%s/contacts/%s", c.baseURL, url.PathEscape(record.Email))
	return c.send(ctx, http.MethodPatch, endpoint, record)
}

func (c *RESTConnector) send(ctx context.Context, method, endpoint string, record *Record) error {
	body, err := json.Marshal(record)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %v", c.name, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s returned status %d", c.name, method, resp.StatusCode)
	}
	return nil
}

func (c *RESTConnector) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// Registry resolves connectors by name.
type Registry struct {
	connectors map[string]Connector
}

func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

func (r *Registry) Register(connector Connector) {
	r.connectors[connector.Name()] = connector
}

// Resolve returns the connectors for the requested names, and the names that
// have no registered connector.
func (r *Registry) Resolve(names []string) ([]Connector, []string) {
	var found []Connector
	var missing []string
	for _, name := range names {
		if c, ok := r.connectors[name]; ok {
			found = append(found, c)
		} else {
			missing = append(missing, name)
		}
	}
	return found, missing
}
