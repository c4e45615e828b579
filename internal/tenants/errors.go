package tenants

import "fmt"

// QuotaExceededError rejects a create before any side effect when the owning
// user is at their plan's site limit.
type QuotaExceededError struct {
	Used    int `json:"used"`
	Allowed int `json:"allowed"`
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("site quota exceeded: %d of %d used", e.Used, e.Allowed)
}

// SlugConflictError rejects a create whose slug is already taken. Raised
// before any provisioning side effect.
type SlugConflictError struct {
	Slug string `json:"slug"`
}

func (e *SlugConflictError) Error() string {
	return fmt.Sprintf("slug %q is already taken", e.Slug)
}

// ProvisioningError wraps a failure in one of the create workflow's
// provisioning steps. The tenant record, if one exists by then, is left in
// error status; already-created external resources are left in place for
// operator inspection rather than rolled back.
type ProvisioningError struct {
	Step string
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning failed at %s: %v", e.Step, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}
