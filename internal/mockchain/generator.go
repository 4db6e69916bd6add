package mockchain

import (
	"fmt"
	"math/rand/v2"
	"time"

	tickets "ticketchain/internal/tickets/domain"
)

const day = 24 * time.Hour

// DefaultSeed makes generated chains reproducible when no seed is given.
const DefaultSeed uint64 = 77

var (
	dispatchDepartments = []string{"FST Accounting", "Dispatch", "Pro Services"}
	dispatchStatuses    = []string{"Open", "In Progress", "Complete", "Pending"}
	turnupStatuses      = []string{"Scheduled", "In Progress", "Complete", "Canceled"}
	technicians         = []string{"Alice", "Bob", "Charlie", "Diana"}
	workResults         = []string{
		"Installed new equipment according to specifications. Customer signed off on work.",
		"Diagnosed and repaired fault in existing system. System is now operational.",
		"Could not complete all tasks due to missing parts. Follow-up visit needed.",
		"Site access issues delayed work completion. Rescheduling needed.",
	}
)

// MaxComplexity bounds Options.Complexity.
const MaxComplexity = 50

// Options shape a generated chain.
type Options struct {
	// Complexity is the number of dispatch tickets; the chain gets one more turnup.
	Complexity int
	Seed       uint64
	// Now anchors the timestamps. Zero uses a fixed date so output depends on Seed alone.
	Now time.Time
}

// Generate builds a synthetic chain. Dispatch ids are 2xxxxxx and turnup ids
// 3xxxxxx, both allocated in creation order. Each turnup follows a random
// dispatch by one to five days. From complexity 3 the last turnup has no
// creation timestamp, and from complexity 2 a project ticket is linked but
// only counted as peripheral.
func Generate(opts Options) Fixture {
	n := min(max(opts.Complexity, 1), MaxComplexity)
	seed := opts.Seed
	if seed == 0 {
		seed = DefaultSeed
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	f := Fixture{ChainID: fmt.Sprintf("MOCK-%012X", rng.Uint64()&0xffffffffffff)}

	dispatchIDs := allocateIDs(rng, 2000000, n)
	var created []time.Time
	for i, id := range dispatchIDs {
		at := now.Add(-time.Duration(5+rng.IntN(26)) * day)
		// Ids follow creation order, so later dispatches never predate earlier ones.
		if i > 0 && at.Before(created[i-1]) {
			at = created[i-1].Add(time.Duration(1+rng.IntN(12)) * time.Hour)
		}
		created = append(created, at)
		d := tickets.Ticket{
			ID:         id,
			Category:   tickets.CategoryDispatch,
			ChainID:    f.ChainID,
			Status:     pick(rng, dispatchStatuses),
			Subject:    fmt.Sprintf("P%d Dispatch %d: Installation at Customer Site", min(i+1, 3), i+1),
			Type:       "Service Request",
			Department: pick(rng, dispatchDepartments),
			Customer:   fmt.Sprintf("Customer %d", i+1),
			SiteID:     fmt.Sprintf("SITE-%04d", 100+i),
			CreatedAt:  ptr(at),
			UpdatedAt:  ptr(at.Add(time.Duration(1+rng.IntN(10)) * day)),
			Notes: []tickets.Note{
				{Author: "Dispatcher Name", PostedAt: ptr(at), Body: fmt.Sprintf("Initial dispatch request for service. Customer needs installation at site. This is test dispatch ticket %d.", i+1)},
				{Author: "Coordinator Name", PostedAt: ptr(at.Add(day)), Body: "Scheduled for next available technician. Will coordinate with customer for access."},
			},
		}
		if d.IsClosed() {
			d.ClosedAt = d.UpdatedAt
		}
		f.Dispatch = append(f.Dispatch, d)
	}

	turnupCount := n + 1
	turnupIDs := allocateIDs(rng, 3000000, turnupCount)
	for i, id := range turnupIDs {
		parent := rng.IntN(n)
		at := created[parent].Add(time.Duration(1+rng.IntN(5)) * day)
		result := pick(rng, workResults)
		subject := fmt.Sprintf("Turnup for Dispatch #%s", dispatchIDs[parent])
		if i > 0 && rng.IntN(3) == 0 {
			subject = fmt.Sprintf("Revisit for Dispatch #%s", dispatchIDs[parent])
		}
		t := tickets.Ticket{
			ID:         id,
			Category:   tickets.CategoryTurnup,
			ChainID:    f.ChainID,
			Status:     pick(rng, turnupStatuses),
			Subject:    subject,
			Type:       "Turnup",
			Department: "Turnups",
			Technician: "Tech " + pick(rng, technicians),
			SiteID:     f.Dispatch[parent].SiteID,
			CreatedAt:  ptr(at),
			UpdatedAt:  ptr(at.Add(time.Duration(1+rng.IntN(10)) * day)),
			Notes: []tickets.Note{
				{Author: "Scheduler Name", PostedAt: ptr(at), Body: fmt.Sprintf("Technician scheduled for service call. Will arrive between 9am-12pm. This is turnup ticket %d for dispatch %s.", i+1, dispatchIDs[parent])},
				{Author: "Tech " + pick(rng, technicians), PostedAt: ptr(at.Add(8 * time.Hour)), Body: "Work performed: " + result},
			},
		}
		if t.IsClosed() {
			t.ClosedAt = ptr(at.Add(8 * time.Hour))
		}
		f.Turnups = append(f.Turnups, t)
	}

	if n >= 3 {
		last := &f.Turnups[len(f.Turnups)-1]
		last.CreatedAt = nil
		last.Notes[0].PostedAt = nil
	}
	if n > 1 && turnupCount > 2 {
		f.Peripheral.Project = 1
		f.ProjectTicketID = allocateIDs(rng, 4000000, 1)[0]
	}

	f.SeedTicketID = f.Dispatch[0].ID
	return f
}

// allocateIDs returns count ascending ids in [base, base+999999].
func allocateIDs(rng *rand.Rand, base, count int) []string {
	span := 999999 - count*50
	next := base + rng.IntN(max(span, 1))
	ids := make([]string, 0, count)
	for range count {
		ids = append(ids, fmt.Sprintf("%d", next))
		next += 1 + rng.IntN(50)
	}
	return ids
}

func pick(rng *rand.Rand, list []string) string {
	return list[rng.IntN(len(list))]
}

func ptr[T any](v T) *T { return &v }
