// Package mockchain produces ticket chains without a ticketing database:
// a seeded generator for synthetic chains and a YAML fixture loader.
package mockchain

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	tickets "ticketchain/internal/tickets/domain"
	"ticketchain/internal/tickets/repository"
	"ticketchain/platform/validator"
)

//go:embed fixtures/ch77.yaml
var ch77YAML []byte

// Fixture is a chain spread over the two ticket sources.
type Fixture struct {
	ChainID      string                   `yaml:"chainId" json:"chainId" validate:"required"`
	SeedTicketID string                   `yaml:"seedTicketId" json:"seedTicketId" validate:"required"`
	Dispatch     []tickets.Ticket         `yaml:"dispatch" json:"dispatch"`
	Turnups      []tickets.Ticket         `yaml:"turnups" json:"turnups"`
	Peripheral   tickets.PeripheralCounts `yaml:"peripheral" json:"peripheral"`
	// ProjectTicketID names the linked project ticket, which is counted but not analyzed.
	ProjectTicketID string `yaml:"projectTicketId,omitempty" json:"projectTicketId,omitempty"`
}

// CH77 returns the embedded three-ticket scenario.
func CH77() Fixture {
	f, err := Load(bytes.NewReader(ch77YAML))
	if err != nil {
		panic(fmt.Sprintf("embedded fixture: %v", err))
	}
	return f
}

// LoadFile reads a fixture from a YAML file.
func LoadFile(path string) (Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("open fixture: %w", err)
	}
	defer file.Close()
	return Load(file)
}

// Load decodes and checks a YAML fixture. Tickets without a chain id are
// linked to the fixture's chain and every ticket is given its section's
// category.
func Load(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return Fixture{}, fmt.Errorf("invalid fixture: %v", validator.Describe(err))
	}

	f.Dispatch = f.normalize(f.Dispatch, tickets.CategoryDispatch)
	f.Turnups = f.normalize(f.Turnups, tickets.CategoryTurnup)

	seen := map[tickets.Key]bool{}
	seedFound := false
	for _, t := range slices.Concat(f.Dispatch, f.Turnups) {
		if t.ID == "" {
			return Fixture{}, fmt.Errorf("invalid fixture: %s ticket without id", t.Category)
		}
		if seen[t.Key()] {
			return Fixture{}, fmt.Errorf("invalid fixture: duplicate %s ticket %s", t.Category, t.ID)
		}
		seen[t.Key()] = true
		if t.ID == f.SeedTicketID {
			seedFound = true
		}
	}
	if !seedFound {
		return Fixture{}, fmt.Errorf("invalid fixture: seed ticket %s is not in the fixture", f.SeedTicketID)
	}
	return f, nil
}

func (f Fixture) normalize(list []tickets.Ticket, cat tickets.Category) []tickets.Ticket {
	out := make([]tickets.Ticket, 0, len(list))
	for _, t := range list {
		t.Category = cat
		if t.ChainID == "" {
			t.ChainID = f.ChainID
		}
		out = append(out, t)
	}
	return out
}

// Sources returns in-memory ticket sources holding the fixture.
func (f Fixture) Sources() (dispatch, turnups *repository.MemorySource) {
	dispatch = repository.NewMemorySource(tickets.CategoryDispatch, f.Dispatch...)
	turnups = repository.NewMemorySource(tickets.CategoryTurnup, f.Turnups...)
	dispatch.SetPeripheral(f.ChainID, f.Peripheral)
	return dispatch, turnups
}

// Repository returns a ticket repository serving the fixture.
func (f Fixture) Repository() *repository.Sources {
	dispatch, turnups := f.Sources()
	return repository.NewSources(dispatch, turnups)
}

// TicketIDs lists every ticket id, dispatch first.
func (f Fixture) TicketIDs() []string {
	ids := make([]string, 0, len(f.Dispatch)+len(f.Turnups))
	for _, t := range f.Dispatch {
		ids = append(ids, t.ID)
	}
	for _, t := range f.Turnups {
		ids = append(ids, t.ID)
	}
	return ids
}

// Merge combines fixtures into one repository so a batch can span chains.
func Merge(fixtures ...Fixture) *repository.Sources {
	dispatch := repository.NewMemorySource(tickets.CategoryDispatch)
	turnups := repository.NewMemorySource(tickets.CategoryTurnup)
	for _, f := range fixtures {
		dispatch.Add(f.Dispatch...)
		turnups.Add(f.Turnups...)
		dispatch.SetPeripheral(f.ChainID, f.Peripheral)
	}
	return repository.NewSources(dispatch, turnups)
}
