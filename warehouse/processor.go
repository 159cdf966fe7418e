package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/swarmchat/agent"
	"github.com/hupe1980/swarmchat/logging"
)

// DefaultSchema describes the sample sales database the data engineer is
// prompted with when no other schema is configured.
const DefaultSchema = `Tables:
- customers (customer_id, name, email, signup_date, country)
- orders (order_id, customer_id, order_date, total_amount, status)
- products (product_id, name, category, price, in_stock)
- order_items (order_id, product_id, quantity, unit_price)`

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	Logger logging.Logger
}

// Processor executes the SQL found in a role's answer and appends the result.
type Processor struct {
	querier Querier
	logger  logging.Logger
}

var _ agent.PostProcessor = (*Processor)(nil)

// NewProcessor creates a Processor running queries through q.
func NewProcessor(q Querier, optFns ...func(o *ProcessorOptions)) *Processor {
	opts := ProcessorOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Processor{querier: q, logger: logging.OrNoOp(opts.Logger)}
}

// Process implements agent.PostProcessor. Answers without a ```sql block are
// returned unchanged. Query failures never fail the turn; they are reported
// inside the answer instead.
func (p *Processor) Process(ctx context.Context, role, _ string, response string) (string, error) {
	query, ok := ExtractSQL(response)
	if !ok {
		return response, nil
	}

	rs, err := p.querier.Query(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		p.logger.Warn("generated query failed", "role", role, "error", err)
		return fmt.Sprintf("%s\n\nQuery failed: %v", response, err), nil
	}

	var b strings.Builder
	b.WriteString(response)
	fmt.Fprintf(&b, "\n\nQuery results (%d rows", len(rs.Rows))
	if rs.Truncated {
		b.WriteString(", truncated")
	}
	b.WriteString("):\n")
	b.WriteString(RenderTable(rs.Columns, rs.Rows))

	return b.String(), nil
}
