package main

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/org/adops/pkg/models"
)

// Client talks to the credential service with the operator's service token.
type Client struct {
	addr  string
	token string
	http  *http.Client
}

func newClient() *Client {
	cfg := effectiveConfig()

	tlsCfg := &tls.Config{}
	if cfg.TLSCACert != "" {
		if data, err := os.ReadFile(cfg.TLSCACert); err == nil {
			pool := x509.NewCertPool()
			pool.AppendCertsFromPEM(data)
			tlsCfg.RootCAs = pool
		}
	}

	return &Client{
		addr:  cfg.Address,
		token: cfg.Token,
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		},
	}
}

// apiEnvelope is the service's response shape: a data payload on success,
// an errors list on failure.
type apiEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []string        `json:"errors"`
}

// call performs an authenticated request and unwraps the response envelope
// into out. A 204 carries no envelope and leaves out untouched.
func (c *Client) call(method, path string, out any) error {
	req, err := http.NewRequest(method, c.addr+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}
	if resp.StatusCode >= 400 {
		if len(env.Errors) > 0 {
			return fmt.Errorf("%s", env.Errors[0])
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// credentialStatus reports whether a live credential exists for the account.
func (c *Client) credentialStatus(ownerID, accountID string) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	err := c.call("GET", "/v1/owners/"+ownerID+"/accounts/"+accountID+"/credential/status", &out)
	return out.Valid, err
}

// accounts lists the owner's connected accounts with per-account validity.
func (c *Client) accounts(ownerID string) ([]models.AccountStatus, error) {
	var out struct {
		Accounts []models.AccountStatus `json:"accounts"`
	}
	err := c.call("GET", "/v1/owners/"+ownerID+"/accounts", &out)
	return out.Accounts, err
}

func (c *Client) disconnect(ownerID, accountID string) error {
	return c.call("DELETE", "/v1/owners/"+ownerID+"/accounts/"+accountID+"/credential", nil)
}

func (c *Client) purge(ownerID string) error {
	return c.call("DELETE", "/v1/owners/"+ownerID+"/credentials", nil)
}

func (c *Client) auditLog(limit int, pathPrefix string) ([]models.AuditEntry, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if pathPrefix != "" {
		q.Set("path", pathPrefix)
	}
	var entries []models.AuditEntry
	err := c.call("GET", "/v1/sys/audit-log?"+q.Encode(), &entries)
	return entries, err
}

// health reads the unauthenticated health endpoint, which responds without
// the data envelope.
func (c *Client) health() (string, error) {
	resp, err := c.http.Get(c.addr + "/v1/sys/health")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return out.Status, fmt.Errorf("%s", out.Error)
	}
	return out.Status, nil
}
