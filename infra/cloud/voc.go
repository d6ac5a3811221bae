// Package cloud implements the core cloud.Client contract against the Volvo
// On Call customer REST API. It is deliberately thin: authentication
// headers, region selection, JSON plumbing and error classification; every
// decision about what to fetch and when lives in the core packages.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	corecloud "github.com/vocbridge/voc2mqtt/core/cloud"
	"github.com/vocbridge/voc2mqtt/core/model"
	"github.com/vocbridge/voc2mqtt/infra/logger"
)

// Region base URLs of the customer API.
var regionURLs = map[string]string{
	"eu": "https://vocapi.wirelesscar.net/customerapi/rest/v3.0/",
	"na": "https://vocapi-na.wirelesscar.net/customerapi/rest/v3.0/",
	"cn": "https://vocapi-cn.wirelesscar.net/customerapi/rest/v3.0/",
}

// Config holds the cloud account settings.
type Config struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// Region selects the API endpoint: eu, na or cn.
	Region string `json:"region"`
	// DeviceID is the stable device identifier sent with every call.
	// Generated when empty.
	DeviceID string `json:"device_id"`
	// ServiceURL overrides the region URL, used in tests.
	ServiceURL     string `json:"service_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Region == "" {
		c.Region = "eu"
	}
	if c.DeviceID == "" {
		c.DeviceID = uuid.NewString()
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 15
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("voc username and password are required")
	}
	if _, ok := regionURLs[c.Region]; !ok && c.ServiceURL == "" {
		return fmt.Errorf("unknown region %q", c.Region)
	}
	return nil
}

func (c Config) baseURL() string {
	if c.ServiceURL != "" {
		return strings.TrimSuffix(c.ServiceURL, "/") + "/"
	}
	return regionURLs[c.Region]
}

// Client talks to the Volvo On Call REST API.
type Client struct {
	cfg  Config
	base string
	http *http.Client
	log  logger.Logger
}

// NewClient creates a Client from the configuration.
func NewClient(cfg Config) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:  cfg,
		base: cfg.baseURL(),
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		log:  logger.New("voc_client"),
	}, nil
}

// do performs one authenticated API call. Absolute URLs are used as-is so
// service invocation URLs returned by the cloud can be polled directly.
func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	if !strings.HasPrefix(url, "http") {
		url = c.base + url
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return &corecloud.TransportError{Op: method + " " + url, Err: err}
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("X-Device-Id", c.cfg.DeviceID)
	req.Header.Set("X-OS-Type", "Android")
	req.Header.Set("X-Originator-Type", "app")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.wirelesscar.com.voc.Service.v4+json; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return &corecloud.TransportError{Op: method + " " + url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &corecloud.AuthError{Reason: resp.Status}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &corecloud.TransportError{
			Op:  method + " " + url,
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &corecloud.TransportError{Op: method + " " + url, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// Login verifies the account credentials.
func (c *Client) Login(ctx context.Context) error {
	var doc struct {
		Username string `json:"username"`
	}
	if err := c.do(ctx, http.MethodGet, "customeraccounts", nil, &doc); err != nil {
		return err
	}
	c.log.Infof("logged in as %s", doc.Username)
	return nil
}

// ListVehicles walks the account's vehicle relations and returns the VINs.
func (c *Client) ListVehicles(ctx context.Context) ([]string, error) {
	var account struct {
		AccountVehicleRelations []string `json:"accountVehicleRelations"`
	}
	if err := c.do(ctx, http.MethodGet, "customeraccounts", nil, &account); err != nil {
		return nil, err
	}
	vins := make([]string, 0, len(account.AccountVehicleRelations))
	for _, rel := range account.AccountVehicleRelations {
		var relation struct {
			VehicleID string `json:"vehicleId"`
		}
		if err := c.do(ctx, http.MethodGet, rel, nil, &relation); err != nil {
			return nil, err
		}
		if relation.VehicleID != "" {
			vins = append(vins, relation.VehicleID)
		}
	}
	return vins, nil
}

func (c *Client) GetAttributes(ctx context.Context, vehicleID string) (model.Attributes, error) {
	var attrs model.Attributes
	if err := c.do(ctx, http.MethodGet, "vehicles/"+vehicleID+"/attributes", nil, &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

func (c *Client) GetStatus(ctx context.Context, vehicleID string) (model.Status, error) {
	var status model.Status
	if err := c.do(ctx, http.MethodGet, "vehicles/"+vehicleID+"/status", nil, &status); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *Client) GetChargeLocations(ctx context.Context, vehicleID string) ([]corecloud.ChargeLocationDoc, error) {
	var doc struct {
		ChargingLocations []map[string]any `json:"chargingLocations"`
	}
	if err := c.do(ctx, http.MethodGet, "vehicles/"+vehicleID+"/chargeLocations?status=Accepted", nil, &doc); err != nil {
		return nil, err
	}
	docs := make([]corecloud.ChargeLocationDoc, 0, len(doc.ChargingLocations))
	for _, raw := range doc.ChargingLocations {
		docs = append(docs, decodeChargeLocation(raw))
	}
	return docs, nil
}

func decodeChargeLocation(raw map[string]any) corecloud.ChargeLocationDoc {
	doc := corecloud.ChargeLocationDoc{Raw: raw}
	if v, ok := raw["name"].(string); ok {
		doc.Name = v
	}
	if v, ok := raw["chargeLocation"].(string); ok {
		doc.Resource = v
	}
	if pos, ok := raw["position"].(map[string]any); ok {
		doc.Position = model.GeoPosition{
			Latitude:      floatField(pos, "latitude"),
			Longitude:     floatField(pos, "longitude"),
			StreetAddress: stringField(pos, "streetAddress"),
			PostalCode:    stringField(pos, "postalCode"),
			City:          stringField(pos, "city"),
		}
	}
	return doc
}

func floatField(m map[string]any, key string) float64 {
	v, _ := m[key].(float64)
	return v
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func (c *Client) GetPosition(ctx context.Context, vehicleID string) (model.Position, error) {
	var doc struct {
		Position model.Position `json:"position"`
	}
	if err := c.do(ctx, http.MethodGet, "vehicles/"+vehicleID+"/position", nil, &doc); err != nil {
		return model.Position{}, err
	}
	return doc.Position, nil
}

// serviceResponse is the cloud's answer to an action POST and to invocation
// status polls.
type serviceResponse struct {
	Status        string `json:"status"`
	Service       string `json:"service"`
	FailureReason string `json:"failureReason"`
}

// SubmitAction posts the remote action. A response without a service URL is
// an immediate terminal result; otherwise the service URL identifies the
// invocation to poll.
func (c *Client) SubmitAction(ctx context.Context, vehicleID string, action corecloud.Action, payload any) (corecloud.SubmitResult, error) {
	path := "vehicles/" + vehicleID + "/" + action.Name
	if action.Target != "" {
		path += "/" + action.Target
	}
	if payload == nil {
		payload = struct{}{}
	}
	var resp serviceResponse
	if err := c.do(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return corecloud.SubmitResult{}, err
	}
	if resp.Service == "" {
		return corecloud.SubmitResult{
			Terminal: true,
			Status:   corecloud.ParseInvocationStatus(resp.Status),
			Reason:   resp.FailureReason,
		}, nil
	}
	return corecloud.SubmitResult{InvocationID: resp.Service}, nil
}

// PollInvocation reads the invocation's service document. The invocation id
// is the service URL returned at submission.
func (c *Client) PollInvocation(ctx context.Context, _ string, invocationID string) (corecloud.PollResult, error) {
	var resp serviceResponse
	if err := c.do(ctx, http.MethodGet, invocationID, nil, &resp); err != nil {
		return corecloud.PollResult{}, err
	}
	return corecloud.PollResult{
		Status: corecloud.ParseInvocationStatus(resp.Status),
		Reason: resp.FailureReason,
	}, nil
}
