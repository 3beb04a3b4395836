package payroll

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Ensure Fake implements the port at compile time.
var _ Client = (*Fake)(nil)

// Fake is an in-memory Client for local development and tests. It keeps
// real per-tenant state so rollback idempotency can be exercised, and lets
// tests inject failures per operation.
//
// Operation names for failure injection: "CreateEmployee", "DeleteEmployee",
// "AssignProfile", "ClearProfile", "SetLeave", "ConfigureTax",
// "AddCalculation", "RemoveCalculation", "VerifyEmployee",
// "SendNotification".
type Fake struct {
	mu sync.Mutex

	employees    map[string]NewEmployee       // employeeID -> record
	profiles     map[string]string            // employeeID -> profileID
	leave        map[string]LeaveSettings     // employeeID -> leave
	tax          map[string]TaxSettings       // employeeID -> tax
	calculations map[string][]calculationItem // employeeID -> items

	// FailOn maps an operation name to the error its next invocations
	// return. Nil entries are ignored.
	FailOn map[string]error

	// Notifications records every sent notification, newest last.
	Notifications []Notification
}

type calculationItem struct {
	ID   string
	Item CalculationItem
}

// NewFake returns an empty in-memory provider.
func NewFake() *Fake {
	return &Fake{
		employees:    make(map[string]NewEmployee),
		profiles:     make(map[string]string),
		leave:        make(map[string]LeaveSettings),
		tax:          make(map[string]TaxSettings),
		calculations: make(map[string][]calculationItem),
		FailOn:       make(map[string]error),
	}
}

func (f *Fake) fail(op string) error {
	if err, ok := f.FailOn[op]; ok && err != nil {
		return err
	}
	return nil
}

func notFound(what, id string) *Error {
	return &Error{Code: "EMPLOYEE_NOT_FOUND", Message: fmt.Sprintf("%s %s not found", what, id), HTTPStatus: 404}
}

func (f *Fake) CreateEmployee(ctx context.Context, tenantID string, emp NewEmployee) (*CreatedEmployee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateEmployee"); err != nil {
		return nil, err
	}

	id := "sp-" + uuid.NewString()[:8]
	f.employees[id] = emp
	return &CreatedEmployee{EmployeeID: id, PayrollNumber: fmt.Sprintf("PN-%s", emp.StaffID)}, nil
}

func (f *Fake) DeleteEmployee(ctx context.Context, tenantID, employeeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("DeleteEmployee"); err != nil {
		return err
	}

	if _, ok := f.employees[employeeID]; !ok {
		return notFound("employee", employeeID)
	}
	delete(f.employees, employeeID)
	delete(f.profiles, employeeID)
	delete(f.leave, employeeID)
	delete(f.tax, employeeID)
	delete(f.calculations, employeeID)
	return nil
}

func (f *Fake) AssignProfile(ctx context.Context, tenantID, employeeID, profileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("AssignProfile"); err != nil {
		return err
	}

	if _, ok := f.employees[employeeID]; !ok {
		return notFound("employee", employeeID)
	}
	f.profiles[employeeID] = profileID
	return nil
}

func (f *Fake) ClearProfile(ctx context.Context, tenantID, employeeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ClearProfile"); err != nil {
		return err
	}

	if _, ok := f.employees[employeeID]; !ok {
		return notFound("employee", employeeID)
	}
	delete(f.profiles, employeeID)
	return nil
}

func (f *Fake) SetLeave(ctx context.Context, tenantID, employeeID string, leave LeaveSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("SetLeave"); err != nil {
		return err
	}

	if _, ok := f.employees[employeeID]; !ok {
		return notFound("employee", employeeID)
	}
	f.leave[employeeID] = leave
	return nil
}

func (f *Fake) ConfigureTax(ctx context.Context, tenantID, employeeID string, tax TaxSettings) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ConfigureTax"); err != nil {
		return "", err
	}

	if _, ok := f.employees[employeeID]; !ok {
		return "", notFound("employee", employeeID)
	}
	f.tax[employeeID] = tax
	return "TAXREF-" + employeeID, nil
}

func (f *Fake) AddCalculation(ctx context.Context, tenantID, employeeID string, item CalculationItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("AddCalculation"); err != nil {
		return "", err
	}

	if _, ok := f.employees[employeeID]; !ok {
		return "", notFound("employee", employeeID)
	}
	id := "calc-" + uuid.NewString()[:8]
	f.calculations[employeeID] = append(f.calculations[employeeID], calculationItem{ID: id, Item: item})
	return id, nil
}

func (f *Fake) RemoveCalculation(ctx context.Context, tenantID, employeeID, calculationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("RemoveCalculation"); err != nil {
		return err
	}

	items := f.calculations[employeeID]
	for i, it := range items {
		if it.ID == calculationID {
			f.calculations[employeeID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return notFound("calculation", calculationID)
}

func (f *Fake) VerifyEmployee(ctx context.Context, tenantID, employeeID string) (*VerificationReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("VerifyEmployee"); err != nil {
		return nil, err
	}

	if _, ok := f.employees[employeeID]; !ok {
		return nil, notFound("employee", employeeID)
	}

	var missing []string
	if _, ok := f.profiles[employeeID]; !ok {
		missing = append(missing, "profile")
	}
	if _, ok := f.leave[employeeID]; !ok {
		missing = append(missing, "leave")
	}
	if _, ok := f.tax[employeeID]; !ok {
		missing = append(missing, "tax")
	}
	if len(f.calculations[employeeID]) == 0 {
		missing = append(missing, "calculations")
	}

	return &VerificationReport{Complete: len(missing) == 0, Missing: missing}, nil
}

func (f *Fake) SendNotification(ctx context.Context, tenantID, employeeID string, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("SendNotification"); err != nil {
		return err
	}

	f.Notifications = append(f.Notifications, n)
	return nil
}

// Employee returns the stored record for an employee id, for test
// assertions.
func (f *Fake) Employee(employeeID string) (NewEmployee, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	emp, ok := f.employees[employeeID]
	return emp, ok
}

// CalculationCount returns how many calculation items exist for the
// employee, for test assertions.
func (f *Fake) CalculationCount(employeeID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calculations[employeeID])
}
