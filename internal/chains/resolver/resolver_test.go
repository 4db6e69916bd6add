package resolver

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"ticketchain/internal/tickets/domain"
	"ticketchain/internal/tickets/repository"
	"ticketchain/platform/apperr"
	"ticketchain/platform/logger"
)

func fixture() (*repository.MemorySource, *repository.MemorySource) {
	dispatch := repository.NewMemorySource(domain.CategoryDispatch,
		domain.Ticket{ID: "2000101", ChainID: "CH-1", Subject: "P1 Install"},
		domain.Ticket{ID: "2000099", ChainID: "CH-1", Subject: "Site Survey"},
		domain.Ticket{ID: "2000300", ChainID: "CH-2"},
		domain.Ticket{ID: "2000400"},
	)
	turnups := repository.NewMemorySource(domain.CategoryTurnup,
		domain.Ticket{ID: "3000102", ChainID: "CH-1"},
		domain.Ticket{ID: "3000101", ChainID: "CH-1"},
		// Joined twice through two chain links.
		domain.Ticket{ID: "3000101", ChainID: "CH-1"},
	)
	dispatch.SetPeripheral("CH-1", domain.PeripheralCounts{Project: 1, Other: 2})
	return dispatch, turnups
}

func ids(chain domain.Chain) []string {
	out := make([]string, 0, len(chain.Tickets))
	for _, t := range chain.Tickets {
		out = append(out, t.ID)
	}
	return out
}

func TestResolveCollectsAndDedupes(t *testing.T) {
	dispatch, turnups := fixture()
	r := New(repository.NewSources(dispatch, turnups), logger.Discard())

	// Resolving from any member yields the same chain.
	for _, seed := range []string{"2000101", "3000101"} {
		chain, err := r.Resolve(context.Background(), seed)
		if err != nil {
			t.Fatalf("resolve %s: %v", seed, err)
		}
		want := []string{"2000099", "2000101", "3000101", "3000102"}
		got := ids(chain)
		if len(got) != len(want) {
			t.Fatalf("seed %s: expected %v, got %v", seed, want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("seed %s: expected %v, got %v", seed, want, got)
			}
		}
		if chain.ID != "CH-1" || chain.SeedTicketID != seed || chain.Partial {
			t.Fatalf("unexpected chain header %+v", chain)
		}
		if chain.Peripheral.Project != 1 || chain.Peripheral.Other != 2 {
			t.Fatalf("expected peripheral counts carried, got %+v", chain.Peripheral)
		}
	}
}

func TestResolveSoloTicket(t *testing.T) {
	dispatch, turnups := fixture()
	chain, err := New(repository.NewSources(dispatch, turnups), logger.Discard()).Resolve(context.Background(), "2000400")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chain.ID != SoloChainPrefix+"2000400" || len(chain.Tickets) != 1 {
		t.Fatalf("expected a single-ticket chain, got %+v", chain)
	}
}

func TestResolveSeedNotFound(t *testing.T) {
	dispatch, turnups := fixture()
	_, err := New(repository.NewSources(dispatch, turnups), logger.Discard()).Resolve(context.Background(), "9999999")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolvePartialWhenCategoryFails(t *testing.T) {
	dispatch, turnups := fixture()
	repo := repository.NewSources(dispatch, turnups)
	turnups.FailWith(errors.New("connection reset"))

	var logs bytes.Buffer
	chain, err := New(repo, logger.NewWithWriter("production", "warn", &logs)).Resolve(context.Background(), "2000101")
	if err != nil {
		t.Fatalf("expected a partial chain, got %v", err)
	}
	if !strings.Contains(logs.String(), `"chainId":"CH-1"`) {
		t.Fatalf("expected the warning keyed by chainId, got %s", logs.String())
	}
	if !chain.Partial || len(chain.Unavailable) != 1 || chain.Unavailable[0] != domain.CategoryTurnup {
		t.Fatalf("expected turnups reported unavailable, got %+v", chain)
	}
	if len(chain.Tickets) != 2 {
		t.Fatalf("expected the two dispatch tickets, got %v", ids(chain))
	}
}

func TestResolveSeedUnreachable(t *testing.T) {
	dispatch, turnups := fixture()
	dispatch.FailWith(errors.New("timeout"))
	turnups.FailWith(errors.New("timeout"))

	_, err := New(repository.NewSources(dispatch, turnups), logger.Discard()).Resolve(context.Background(), "2000101")
	if err == nil || apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected an unavailable error, got %v", err)
	}
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable kind, got %v", err)
	}
}

func TestResolveCancelledDuringChainQuery(t *testing.T) {
	dispatch, turnups := fixture()
	turnups.FailWith(context.Canceled)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(repository.NewSources(dispatch, turnups), logger.Discard()).Resolve(ctx, "2000101")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to abort, got %v", err)
	}
}
