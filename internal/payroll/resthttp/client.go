// Package resthttp implements the payroll.Client port against the
// provider's JSON REST API.
//
// The adapter owns transport policy: a per-request timeout via the shared
// http.Client and a tenant-scoped URL layout. Callers only see typed
// successes and *payroll.Error failures.
package resthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/careops/staff-provisioning/internal/payroll"
)

// Ensure Client implements the port at compile time.
var _ payroll.Client = (*Client)(nil)

// Client talks to the payroll provider over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New returns a client for the provider at baseURL authenticating with
// apiKey.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do sends one JSON request and decodes the response into out (when
// non-nil). Non-2xx responses become *payroll.Error.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return fmt.Errorf("resthttp: encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &body)
	if err != nil {
		return fmt.Errorf("resthttp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("resthttp: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var eb errorBody
		_ = json.NewDecoder(res.Body).Decode(&eb)
		if eb.Code == "" {
			eb.Code = "PROVIDER_ERROR"
			eb.Message = res.Status
		}
		return &payroll.Error{Code: eb.Code, Message: eb.Message, HTTPStatus: res.StatusCode}
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("resthttp: decode response: %w", err)
		}
	}
	return nil
}

func employeePath(tenantID, employeeID string) string {
	return fmt.Sprintf("/v1/tenants/%s/employees/%s", url.PathEscape(tenantID), url.PathEscape(employeeID))
}

func (c *Client) CreateEmployee(ctx context.Context, tenantID string, emp payroll.NewEmployee) (*payroll.CreatedEmployee, error) {
	in := map[string]any{
		"staffId":       emp.StaffID,
		"firstName":     emp.FirstName,
		"lastName":      emp.LastName,
		"email":         emp.Email,
		"idNumber":      emp.IDNumber,
		"taxNumber":     emp.TaxNumber,
		"startDate":     emp.StartDate.Format("2006-01-02"),
		"monthlySalary": emp.MonthlySalary,
	}
	var out struct {
		EmployeeID    string `json:"employeeId"`
		PayrollNumber string `json:"payrollNumber"`
	}
	path := fmt.Sprintf("/v1/tenants/%s/employees", url.PathEscape(tenantID))
	if err := c.do(ctx, http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}
	return &payroll.CreatedEmployee{EmployeeID: out.EmployeeID, PayrollNumber: out.PayrollNumber}, nil
}

func (c *Client) DeleteEmployee(ctx context.Context, tenantID, employeeID string) error {
	return c.do(ctx, http.MethodDelete, employeePath(tenantID, employeeID), nil, nil)
}

func (c *Client) AssignProfile(ctx context.Context, tenantID, employeeID, profileID string) error {
	in := map[string]string{"profileId": profileID}
	return c.do(ctx, http.MethodPut, employeePath(tenantID, employeeID)+"/profile", in, nil)
}

func (c *Client) ClearProfile(ctx context.Context, tenantID, employeeID string) error {
	return c.do(ctx, http.MethodDelete, employeePath(tenantID, employeeID)+"/profile", nil, nil)
}

func (c *Client) SetLeave(ctx context.Context, tenantID, employeeID string, leave payroll.LeaveSettings) error {
	in := map[string]any{
		"annualDays":               leave.AnnualDays,
		"sickCycleDays":            leave.SickCycleDays,
		"sickCycleMonths":          leave.SickCycleMonths,
		"familyResponsibilityDays": leave.FamilyResponsibilityDays,
		"cycleStart":               leave.CycleStart.Format("2006-01-02"),
	}
	return c.do(ctx, http.MethodPut, employeePath(tenantID, employeeID)+"/leave", in, nil)
}

func (c *Client) ConfigureTax(ctx context.Context, tenantID, employeeID string, tax payroll.TaxSettings) (string, error) {
	in := map[string]string{"taxNumber": tax.TaxNumber, "directive": tax.Directive}
	var out struct {
		Reference string `json:"reference"`
	}
	if err := c.do(ctx, http.MethodPut, employeePath(tenantID, employeeID)+"/tax", in, &out); err != nil {
		return "", err
	}
	return out.Reference, nil
}

func (c *Client) AddCalculation(ctx context.Context, tenantID, employeeID string, item payroll.CalculationItem) (string, error) {
	in := map[string]any{"code": item.Code, "description": item.Description, "amount": item.Amount}
	var out struct {
		CalculationID string `json:"calculationId"`
	}
	if err := c.do(ctx, http.MethodPost, employeePath(tenantID, employeeID)+"/calculations", in, &out); err != nil {
		return "", err
	}
	return out.CalculationID, nil
}

func (c *Client) RemoveCalculation(ctx context.Context, tenantID, employeeID, calculationID string) error {
	path := employeePath(tenantID, employeeID) + "/calculations/" + url.PathEscape(calculationID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) VerifyEmployee(ctx context.Context, tenantID, employeeID string) (*payroll.VerificationReport, error) {
	var out struct {
		Complete bool     `json:"complete"`
		Missing  []string `json:"missing"`
	}
	if err := c.do(ctx, http.MethodGet, employeePath(tenantID, employeeID)+"/verification", nil, &out); err != nil {
		return nil, err
	}
	return &payroll.VerificationReport{Complete: out.Complete, Missing: out.Missing}, nil
}

func (c *Client) SendNotification(ctx context.Context, tenantID, employeeID string, n payroll.Notification) error {
	in := map[string]string{"email": n.Email, "subject": n.Subject, "body": n.Body}
	return c.do(ctx, http.MethodPost, employeePath(tenantID, employeeID)+"/notifications", in, nil)
}
