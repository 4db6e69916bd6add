package prompt

import (
	"fmt"
	"strings"

	"ticketchain/internal/tickets/domain"
)

// AssistantInstructions configures the file_search assistant created by setup.
const AssistantInstructions = `You are a field service analyst. Ticket data for one chain is attached as JSON
files: one chain_<id>.json with the roster and ordered timeline, and one file
per ticket with its description and notes. Answer only from the attached files.
When asked for JSON, reply with a single JSON object and nothing else.`

// Extraction renders the Phase 2 request for chain. The reply is validated
// against a fixed schema; every key is required and lists may be empty.
func Extraction(chain domain.Chain) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze ticket chain %s (%d tickets, seed %s) using the attached files.\n",
		chain.ID, len(chain.Tickets), chain.SeedTicketID)
	if chain.Partial {
		b.WriteString("Some ticket categories could not be loaded; do not infer their contents.\n")
	}
	b.WriteString(extractionSchema)
	return b.String()
}

const extractionSchema = `
Return one JSON object with exactly these keys:
{
  "timeline": [{"ticket_id": "...", "event": "...", "timestamp": "...", "description": "..."}],
  "relationships": {"<dispatch_id>": ["<turnup_id>", "..."]},
  "material_shortages": [{"ticket_id": "...", "material": "...", "impact": "..."}],
  "revisits": [{"ticket_id": "...", "reason": "...", "billable": true}],
  "billing_notes": [{"ticket_id": "...", "milestone": "...", "note": "..."}],
  "anomalies": [{"description": "...", "ticket_ids": ["..."]}]
}
Covering:
1. The timeline of visits, their scope and completion status, in order.
2. Which dispatch tickets spawned which turnup tickets.
3. Material shortages, which tickets mention them, and the effect on scheduling.
4. Revisits, their causes, and whether they were billable to the client.
5. Billing milestones such as 50% billing and completed billing.
6. Inconsistencies between tickets.
Use empty lists or an empty object when nothing applies. Do not add keys.
`
