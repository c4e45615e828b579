package tenants

import "context"

// Subscription is the plan/quota collaborator. Plan arithmetic lives outside
// this control plane; it is consumed only as a quota answer and a replica
// count.
type Subscription interface {
	// CanCreateInstance reports whether the user may create another site,
	// along with the plan's allowed count for the quota error detail.
	CanCreateInstance(ctx context.Context, userID string, currentCount int) (bool, int, error)
	// ReplicasForPlan resolves how many parallel instances the user's plan
	// grants a site.
	ReplicasForPlan(ctx context.Context, userID string) (int, error)
}

// StaticSubscription grants every user the same configured limits. Used
// when no billing service is wired in.
type StaticSubscription struct {
	MaxSites int
	Replicas int
}

func (s *StaticSubscription) CanCreateInstance(_ context.Context, _ string, currentCount int) (bool, int, error) {
	return currentCount < s.MaxSites, s.MaxSites, nil
}

func (s *StaticSubscription) ReplicasForPlan(_ context.Context, _ string) (int, error) {
	return s.Replicas, nil
}
