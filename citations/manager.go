package citations

import (
	"context"

	xerrors "github.com/researchforge/citekit/errors"
	"github.com/researchforge/citekit/logging"
)

// Manager fans citation lookups out across the configured services.
// Services are tried in registration order; each one paces itself through
// the shared rate limiter, so the manager stays sequential.
type Manager struct {
	clients []Client
	logger  *logging.Logger
}

// NewManager creates a manager over the given clients.
func NewManager(clients ...Client) *Manager {
	return &Manager{
		clients: clients,
		logger:  logging.New().WithComponent("citations"),
	}
}

// SetLogger replaces the manager's logger.
func (m *Manager) SetLogger(l *logging.Logger) {
	m.logger = l
}

// SearchAllByDOI looks the DOI up on every service. The result maps
// provider key to the paper found there; services that failed or had no
// record are absent. Lookup errors are logged, not returned — a miss on
// one service should not abort the others.
func (m *Manager) SearchAllByDOI(ctx context.Context, doi string) map[string]*Paper {
	results := make(map[string]*Paper)
	for _, c := range m.clients {
		paper, err := c.SearchByDOI(ctx, doi)
		if err != nil {
			m.logger.Warn("doi lookup failed", map[string]interface{}{
				"provider": c.Name(),
				"doi":      doi,
				"error":    err.Error(),
			})
			continue
		}
		results[c.Name()] = paper
	}
	return results
}

// FullText returns the first full text any service can produce for the DOI.
// Returns a NOT_FOUND error if no service has it.
func (m *Manager) FullText(ctx context.Context, doi string) (string, error) {
	for _, c := range m.clients {
		text, err := c.FullText(ctx, doi)
		if err != nil {
			if !xerrors.Is(err, xerrors.ErrCodeNotFound) {
				m.logger.Warn("full text lookup failed", map[string]interface{}{
					"provider": c.Name(),
					"doi":      doi,
					"error":    err.Error(),
				})
			}
			continue
		}
		if text != "" {
			return text, nil
		}
	}
	return "", xerrors.NotFound("no service has full text for this DOI")
}
